// flagstored runs the flag store's maintenance daemon: it provisions the
// configured backend and keeps the history purger ticking until terminated.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandeepkv93/feature-flag-store/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		log.Fatal(err)
	}

	if a.Purger != nil {
		a.Logger.Info("history purger starting", "interval", a.Config.HistoryPurgeInterval)
		go a.Purger.Run(ctx)
	} else {
		a.Logger.Info("backend needs no history purger", "backend", a.Config.Backend)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		a.Logger.Error("shutdown failed", "error", err)
	}
}
