package main

import (
	"errors"

	"github.com/spf13/cobra"

	"shmath/internal/daemonize"
	"shmath/internal/daemonrun"
	"shmath/internal/fifo"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run shmathd in this process (internal)",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			detached := daemonize.IsDetachedChild()
			if detached {
				if err := daemonize.Detach(daemonize.Options{}); err != nil {
					return err
				}
			}
			result, err := daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(cfg),
				Development: development,
				Foreground:  !detached,
			})
			if err != nil {
				return err
			}
			if result.Reason == fifo.ReasonStartupFailed {
				return errors.New("daemon failed to start")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log records")
	return cmd
}
