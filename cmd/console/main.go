package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"awaas.org/internal/audit"
	"awaas.org/internal/httpapi"
	"awaas.org/internal/obs"
	"awaas.org/internal/parking"
	"awaas.org/internal/parking/backend"
	"awaas.org/internal/store/pg"
	"awaas.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	backendURL := os.Getenv("AWAAS_BACKEND_URL")
	if backendURL == "" {
		log.Fatal("AWAAS_BACKEND_URL is required")
	}

	var opts []backend.Option
	if token := os.Getenv("AWAAS_BACKEND_TOKEN"); token != "" {
		opts = append(opts, backend.WithToken(token))
	}
	client := backend.New(backendURL, opts...)

	// Audit database is optional; without it /v1/audit/recent answers 503
	// and audit events go to the log only.
	var store *pg.Store
	if dsn := os.Getenv("AWAAS_PG_DSN"); dsn != "" {
		var err error
		store, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open audit store: %v", err)
		}
		audit.SetSink(store)
	}

	controller := parking.NewController(client)
	api := httpapi.New(version, controller, client, stream.New(), store)

	addr := os.Getenv("AWAAS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting awaas-console %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
