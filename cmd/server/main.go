// Command server is the entry point for the Momento media API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"momento/internal/bootstrap"
	"momento/internal/config"
	"momento/internal/middleware"
	"momento/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.SetupLogger(cfg.Env, os.Getenv("LOG_LEVEL"))

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{
		ApplySchema:         true,
		LocalTranscodeDelay: 2 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv, err := server.NewServer(cfg, server.Deps{
		DB:         rt.DB,
		ReadDB:     rt.ReadDB,
		Redis:      rt.Redis,
		Objects:    rt.Objects,
		Classifier: rt.Classifier,
		Transcoder: rt.Transcoder,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	if rt.Pool != nil {
		rt.Pool.Start(workerCtx)
	}

	app := srv.App()

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}

		stopWorkers()
		if err := rt.Close(ctx); err != nil {
			log.Printf("Runtime shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	<-done
}
