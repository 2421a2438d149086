package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/sKV/client"
	"github.com/ValentinKolb/sKV/cmd/util"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for sKV servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of parallel workers to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	if skip := viper.GetString("skip"); skip != "" {
		perfSkip = strings.Split(skip, ",")
	}

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for sKV servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Endpoint: %s\n", viper.GetString("endpoint"))
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Keys: %d\n", perfKeySpread)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	run := func(name string, op func(c *client.Client, counter int) error, setup, cleanup func(c *client.Client)) {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}

			if setup != nil {
				withClient(name, setup)
			}
			if cleanup != nil {
				b.Cleanup(func() { withClient(name, cleanup) })
			}

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				// The client is single-connection; every worker dials its own.
				c, err := client.Dial(util.GetClientConfig())
				if err != nil {
					log.Printf("(%s) - error dialing: %v\n", name, err)
					return
				}
				defer c.Close()

				counter := 0
				for pb.Next() {
					if err := op(c, counter); err != nil {
						log.Printf("(%s) - error: %v\n", name, err)
					}
					counter++
				}
			})
		})

		results[name] = result
		printResult(name, result)
	}

	getKey, iter := getKeys("bench")

	setValues := func(c *client.Client) {
		iter(func(k string) {
			if _, err := c.DoStrings("SET", k, "test"); err != nil {
				log.Printf("(setup) - error setting key: %v\n", err)
			}
		})
	}
	deleteValues := func(c *client.Client) {
		iter(func(k string) {
			if _, err := c.DoStrings("DEL", k); err != nil {
				log.Printf("(cleanup) - error deleting key: %v\n", err)
			}
		})
	}

	run("set", func(c *client.Client, counter int) error {
		_, err := c.DoStrings("SET", getKey(counter), "test")
		return err
	}, nil, deleteValues)

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	run("set-large", func(c *client.Client, counter int) error {
		_, err := c.DoStrings("SET", getKey(counter), largeValue)
		return err
	}, nil, deleteValues)

	run("get", func(c *client.Client, counter int) error {
		_, err := c.DoStrings("GET", getKey(counter))
		return err
	}, setValues, deleteValues)

	run("delete", func(c *client.Client, counter int) error {
		_, err := c.DoStrings("DEL", getKey(counter))
		return err
	}, setValues, nil)

	run("exists", func(c *client.Client, counter int) error {
		_, err := c.DoStrings("EXISTS", getKey(counter))
		return err
	}, setValues, deleteValues)

	run("exists-not", func(c *client.Client, counter int) error {
		_, err := c.DoStrings("EXISTS", fmt.Sprintf("%s/exists-not-%d", perfKeyPrefix, counter%100))
		return err
	}, nil, nil)

	run("incr", func(c *client.Client, counter int) error {
		_, err := c.DoStrings("INCR", perfKeyPrefix+"-counter")
		return err
	}, nil, func(c *client.Client) {
		_, _ = c.DoStrings("DEL", perfKeyPrefix+"-counter")
	})

	run("mixed", func(c *client.Client, counter int) error {
		key := getKey(counter)
		var err error
		switch counter % 4 {
		case 0: // set
			_, err = c.DoStrings("SET", key, "test")
		case 1: // get
			_, err = c.DoStrings("GET", key)
		case 2: // delete
			_, err = c.DoStrings("DEL", key)
		case 3: // exists
			_, err = c.DoStrings("EXISTS", key)
		}
		return err
	}, setValues, deleteValues)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// withClient runs fn with a short-lived connection.
func withClient(name string, fn func(c *client.Client)) {
	c, err := client.Dial(util.GetClientConfig())
	if err != nil {
		log.Printf("(%s) - error dialing: %v\n", name, err)
		return
	}
	defer c.Close()
	fn(c)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoint", "TimeoutSec",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			viper.GetString("endpoint"),
			strconv.Itoa(viper.GetInt("timeout")),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
