package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marketloom/pointer-engine/internal/app"
)

func main() {
	a, err := app.New(app.Hooks{})
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()
	a.Log.Info("Pointer engine running",
		"validation_interval", a.Cfg.ValidationInterval,
		"batch_size", a.Cfg.ValidationBatchSize,
		"cache_backend", a.Cfg.CacheBackend,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Log.Info("Shutting down...")
}
