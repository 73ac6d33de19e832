// Command shmathd detaches from the terminal and serves commands written to
// its named pipe until it reads the exit sentinel.
//
// The config file is taken from SHMATH_CONFIG, then the default search path.
// The parent exits 0 once the detached child has been started.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"shmath/internal/config"
	"shmath/internal/daemonize"
	"shmath/internal/daemonrun"
	"shmath/internal/fifo"
)

type runEnv struct {
	configPath string
	stderr     io.Writer
	detach     daemonize.Options
	serve      daemonrun.Options
}

func main() {
	os.Exit(run(context.Background(), runEnv{
		configPath: os.Getenv("SHMATH_CONFIG"),
		stderr:     os.Stderr,
	}))
}

func run(ctx context.Context, rt runEnv) int {
	cfg, _, _, err := config.Load(rt.configPath)
	if err != nil {
		fmt.Fprintf(rt.stderr, "shmathd: load config: %v\n", err)
		return 1
	}

	res, err := daemonize.Daemonize(rt.detach)
	if err != nil {
		fmt.Fprintf(rt.stderr, "shmathd: %v\n", err)
		return daemonize.ExitCode(err)
	}
	if res.Role == daemonize.RoleParent {
		return 0
	}

	result, err := daemonrun.Run(ctx, cfg, rt.serve)
	return exitStatus(result, err)
}

// exitStatus maps how the channel server stopped to a process exit status.
func exitStatus(result fifo.Result, err error) int {
	if err != nil || result.Reason == fifo.ReasonStartupFailed {
		return 1
	}
	return 0
}
