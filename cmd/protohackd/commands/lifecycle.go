package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
)

// runUntilSignal runs run(ctx) until it returns or SIGINT/SIGTERM arrives.
// A first signal cancels ctx for a graceful shutdown; a second forces an
// immediate exit.
func runUntilSignal(run func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		pterm.Info.Println("shutting down gracefully (press Ctrl+C again to force)...")
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
			pterm.Success.Println("stopped cleanly")
			return nil
		case <-sigCh:
			pterm.Warning.Println("force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
