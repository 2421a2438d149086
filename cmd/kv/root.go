package kv

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ValentinKolb/sKV/client"
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/resp"
)

var (
	kvClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations against a running sKV server",
		PersistentPreRunE: setupKVClient,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if kvClient != nil {
				_ = kvClient.Close()
			}
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common connection flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(pingCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(ttlCmd)
	KeyValueCommands.AddCommand(expireCmd)
	KeyValueCommands.AddCommand(incrCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(bgRewriteCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects to the configured server
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	kvClient, err = client.Dial(util.GetClientConfig())
	return err
}

// printFrame renders a reply frame for the terminal. Server-side errors
// become Go errors so the process exits non-zero.
func printFrame(f resp.Frame) error {
	switch f.Kind {
	case resp.KindError:
		return fmt.Errorf("server error: %s", f.Str)
	case resp.KindSimpleString:
		fmt.Println(f.Str)
	case resp.KindInteger:
		fmt.Println(f.Int)
	case resp.KindBulkString:
		if f.Bulk == nil {
			fmt.Println("(nil)")
		} else {
			fmt.Println(string(f.Bulk))
		}
	case resp.KindArray:
		for _, child := range f.Array {
			if err := printFrame(child); err != nil {
				return err
			}
		}
	}
	return nil
}
