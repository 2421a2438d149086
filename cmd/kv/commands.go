package kv

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks the connection to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings("PING")
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key, optionally with a time to live",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := []string{"SET", args[0], args[1]}

			ex, _ := cmd.Flags().GetInt64("ex")
			px, _ := cmd.Flags().GetInt64("px")
			if ex > 0 {
				request = append(request, "EX", strconv.FormatInt(ex, 10))
			}
			if px > 0 {
				request = append(request, "PX", strconv.FormatInt(px, 10))
			}

			reply, err := kvClient.DoStrings(request...)
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings("GET", args[0])
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]...",
		Short: "Deletes one or more keys, printing the number removed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings(append([]string{"DEL"}, args...)...)
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	ttlCmd = &cobra.Command{
		Use:   "ttl [key]",
		Short: "Prints the remaining time to live of a key in seconds (-1 = no expiry, -2 = missing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings("TTL", args[0])
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	expireCmd = &cobra.Command{
		Use:   "expire [key] [seconds]",
		Short: "Sets the time to live of an existing key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
				return fmt.Errorf("seconds must be a number: %w", err)
			}
			reply, err := kvClient.DoStrings("EXPIRE", args[0], args[1])
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [key]",
		Short: "Increments the integer value of a key, printing the new value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings("INCR", args[0])
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings("EXISTS", args[0])
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info [section]",
		Short: "Prints server information, optionally filtered to one section",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings(append([]string{"INFO"}, args...)...)
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
	bgRewriteCmd = &cobra.Command{
		Use:   "bgrewriteaof",
		Short: "Asks the server to compact its append log in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := kvClient.DoStrings("BGREWRITEAOF")
			if err != nil {
				return err
			}
			return printFrame(reply)
		},
	}
)

func init() {
	setCmd.Flags().Int64("ex", 0, "time to live in seconds")
	setCmd.Flags().Int64("px", 0, "time to live in milliseconds")
}
