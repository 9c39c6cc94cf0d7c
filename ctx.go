package bleperiph

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithSigHandler cancels the context when SIGINT or SIGTERM is received.
func WithSigHandler(ctx context.Context, cancel func()) context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			GetLogger().Info("signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx
}
