package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"w24fs/internal/client"
	"w24fs/internal/protocol"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "w24client [--addr host:port] <command> [args...]",
		Short: "Send one command to a w24 node and print the response",
		Example: `  w24client dirlist -a
  w24client w24fz 400 600
  w24client w24ft txt go`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			if _, err := client.Validate(line); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c, err := client.Dial(ctx, addr)
			if err != nil {
				return err
			}
			defer c.Close()

			frames, err := c.Do(line)
			for _, f := range frames {
				if f == protocol.EndOfData {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(f, "\n"))
			}
			return err
		},
	}
	// flags stop at the first command word so "dirlist -a" is passed through
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8888", "primary node address")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "connect timeout")
	return cmd
}
