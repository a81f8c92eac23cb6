// ledgerctl reads and edits the ledger from the command line, against the
// same backend the web server uses.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloudledger/internal/cli"
	"cloudledger/internal/log"
	"cloudledger/internal/services"
)

func main() {
	a := &app{now: time.Now, open: openConfigured}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openConfigured builds the ledger from the environment. Logs go to stderr
// so command output stays clean.
func openConfigured(ctx context.Context, level string) (*services.Ledger, func() error, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, nil, err
	}
	if level == "" {
		level = cfg.LogLevel
	}
	logger := cli.SetupLogger(level, log.ComponentCLI, os.Stderr)
	store, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	return services.NewLedger(store.Store, services.WithLogger(logger)), store.Close, nil
}
