package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shmath/internal/config"
	"shmath/internal/daemonctl"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	var newline bool

	cmd := &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Write one command into the daemon pipe",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			payload := strings.Join(args, " ")
			if newline || (cfg.Channel.Framing == config.FramingLine && !strings.HasSuffix(payload, "\n")) {
				payload += "\n"
			}

			sendCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := daemonctl.Send(sendCtx, cfg.Paths.Pipe, []byte(payload)); err != nil {
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					return fmt.Errorf("send: %w (start it with `shmath start`)", err)
				}
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d bytes to %s\n", len(payload), cfg.Paths.Pipe)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the daemon to open the pipe")
	cmd.Flags().BoolVarP(&newline, "newline", "n", false, "Terminate the command with a newline")
	return cmd
}
