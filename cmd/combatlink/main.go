// Command combatlink is the offline companion to the attribution service:
// it replays recorded logs, prints rulesets, generates synthetic traffic
// and load tests a running server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/combatlink/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		format, _ := cmd.PersistentFlags().GetString("format")
		cli.WriteError(cmd.ErrOrStderr(), format, err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
