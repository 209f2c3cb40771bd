package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imagepulse/imagepulse"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	port := flag.Int("port", 0, "port to be used by the service (overrides config)")
	dbPath := flag.String("db", "", "path to the SQLite database (overrides config)")
	initDB := flag.Bool("init-db", false, "initialize the database schema and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := imagepulse.OpenStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", cfg.DatabasePath, err)
	}
	defer store.Close()

	// Initialization is idempotent, so serving runs it too; the flag
	// exists for operators who want schema creation as a separate step.
	if err := store.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if *initDB {
		log.Infof("Database initialized at %s", cfg.DatabasePath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	puller, err := imagepulse.NewDockerPuller()
	if err != nil {
		log.Fatalf("Failed to connect to docker daemon: %v", err)
	}

	worker := imagepulse.NewWorker(store, puller,
		int64(cfg.MaxConcurrentPulls),
		int64(cfg.PerRegistryMax),
		time.Duration(cfg.LeaseSeconds)*time.Second,
	)
	go worker.Run(ctx)

	server := imagepulse.NewServer(fmt.Sprintf(":%d", cfg.Port), store)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: server.Router()}
	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("forced shutdown")
		}
	}()

	log.Infof("Listening on :%d (database: %s)", cfg.Port, cfg.DatabasePath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*imagepulse.Config, error) {
	var cfg *imagepulse.Config
	if path != "" {
		loaded, err := imagepulse.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = imagepulse.DefaultConfig()
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
