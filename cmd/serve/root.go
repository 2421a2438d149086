package serve

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/aol"
	"github.com/ValentinKolb/sKV/lib/store/memstore"
	"github.com/ValentinKolb/sKV/server"
	"github.com/ValentinKolb/sKV/server/common"
	"github.com/ValentinKolb/sKV/server/telemetry"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the sKV server",
		Long:    `Start the sKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SKV_<flag> (e.g. SKV_AOL_SYNC=always)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:7379", cmdUtil.WrapString("The address on which the server will listen"))

	key = "max-keys"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Upper bound on the number of keys; when reached, an approximate-LRU victim is evicted before each insert (0 = unbounded)"))

	key = "sample-size"
	ServeCmd.PersistentFlags().Int(key, memstore.DefaultSampleSize, cmdUtil.WrapString("Number of random candidates inspected per eviction; larger samples track true LRU more closely at higher cost"))

	key = "aol-path"
	ServeCmd.PersistentFlags().String(key, "appendonly.aof", cmdUtil.WrapString("Path of the append-only operation log. An empty path disables persistence"))

	key = "aol-sync"
	ServeCmd.PersistentFlags().String(key, string(aol.SyncEverySec), cmdUtil.WrapString("Fsync cadence of the append log: always (fsync per write), everysec (background fsync about once per second) or no (OS decides)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional HTTP address serving Prometheus-format metrics (e.g. 127.0.0.1:9100, empty = disabled)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY for accepted connections"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval for accepted connections (in seconds, 0 = disabled)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time for accepted connections (in seconds, negative = kernel default)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The socket read buffer size for accepted connections (in KB, 0 = kernel default)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The socket write buffer size for accepted connections (in KB, 0 = kernel default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.MaxKeys = viper.GetInt("max-keys")
	serveCmdConfig.SampleSize = viper.GetInt("sample-size")
	serveCmdConfig.AOLPath = viper.GetString("aol-path")
	serveCmdConfig.AOLSync = viper.GetString("aol-sync")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Socket = common.SocketConf{
		ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		WriteBufferSize: viper.GetInt("write-buffer") * 1024,
	}
	serveCmdConfig.TCP = common.TCPConf{
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
	}

	// validate the sync mode even when persistence is off, so a typo is
	// caught before the server silently runs without the intended cadence
	if _, err := aol.ParseSyncMode(serveCmdConfig.AOLSync); err != nil {
		return err
	}

	if serveCmdConfig.MaxKeys < 0 {
		return fmt.Errorf("max-keys must be >= 0, got %d", serveCmdConfig.MaxKeys)
	}

	return nil
}

// run starts the sKV server
func run(_ *cobra.Command, _ []string) error {
	logger, err := common.CreateLogger("serve", serveCmdConfig.LogLevel)
	if err != nil {
		return err
	}
	logger.Info(serveCmdConfig.String())

	// build the store
	st := memstore.New(&memstore.Options{
		MaxKeys:    serveCmdConfig.MaxKeys,
		SampleSize: serveCmdConfig.SampleSize,
	})
	telemetry.RegisterStoreGauges(st)

	// replay the existing log, then open it for appending. An open
	// failure degrades to serving without persistence.
	var log *aol.Log
	if serveCmdConfig.PersistenceEnabled() {
		syncMode, _ := aol.ParseSyncMode(serveCmdConfig.AOLSync)

		applied, err := aol.Replay(serveCmdConfig.AOLPath, st, logger.Named("aol"))
		if err != nil {
			logger.Warnw("append log replay failed, continuing with partial state", "err", err)
		} else if applied > 0 {
			logger.Infow("append log replayed", "records", applied, "keys", st.Len())
		}

		log, err = aol.Open(serveCmdConfig.AOLPath, syncMode, logger.Named("aol"))
		if err != nil {
			logger.Warnw("could not open append log, persistence disabled", "err", err)
			log = nil
		}
	} else {
		logger.Warn("no append log path configured, persistence disabled")
	}

	// optional metrics endpoint
	if serveCmdConfig.MetricsEndpoint != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			if err := http.ListenAndServe(serveCmdConfig.MetricsEndpoint, mux); err != nil {
				logger.Warnw("metrics endpoint failed", "err", err)
			}
		}()
	}

	srv := server.New(*serveCmdConfig, st, log, logger.Named("server"))

	// graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infow("shutting down", "signal", sig.String())
		srv.Shutdown()
	}()

	if err := srv.Serve(); err != nil {
		return err
	}

	// all connections are drained; flush the log last
	if log != nil {
		if err := log.Close(); err != nil {
			logger.Warnw("closing append log failed", "err", err)
		}
	}
	logger.Info("bye")
	return nil
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("skv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
