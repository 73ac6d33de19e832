package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"shmath/internal/daemonctl"
	"shmath/internal/preflight"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start shmathd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.configValue(), exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop shmathd by writing the exit sentinel into its pipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon ignored the sentinel; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, pipe and lock status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			status := daemonctl.BuildStatus(cfg)

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range status.Lines() {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Channel", colorize) {
				fmt.Fprintln(stdout, line)
			}
			pid := "-"
			if status.PID > 0 {
				pid = strconv.Itoa(status.PID)
			}
			rows := [][]string{
				{"Pipe", cfg.Paths.Pipe},
				{"Mode", cfg.Channel.Mode},
				{"Framing", cfg.Channel.Framing},
				{"Buffer size", strconv.Itoa(cfg.Channel.BufferSize)},
				{"Sentinel", strconv.Quote(cfg.Channel.Sentinel)},
				{"Exclusive", yesNo(cfg.Channel.Exclusive)},
				{"PID", pid},
				{"Process alive", yesNo(status.ProcessAlive)},
			}
			fmt.Fprint(stdout, renderTable([]string{"Setting", "Value"}, rows, nil))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, check := range preflight.RunAll(cfg) {
				kind := statusOK
				if !check.Passed {
					kind = statusWarn
				}
				fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{
		ConfigPath: ctx.configFlagValue(),
		Logger:     ctx.cliLogger(),
	}
	if ctx.logLevelFlag != nil {
		opts.LogLevel = *ctx.logLevelFlag
	}
	return opts
}
