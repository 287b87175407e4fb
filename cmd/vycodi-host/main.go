// Command vycodi-host runs a single file-serving host process: it binds
// an HTTP file server over a configured storage backend, registers
// itself and its bucket with the coordinator, and heartbeats its own
// liveness until it receives a termination signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/vycodi/vycodi/backend"
	"gitlab.com/vycodi/vycodi/backend/fsbackend"
	"gitlab.com/vycodi/vycodi/backend/s3backend"
	"gitlab.com/vycodi/vycodi/config"
	"gitlab.com/vycodi/vycodi/coordinator"
	"gitlab.com/vycodi/vycodi/host"
	"gitlab.com/vycodi/vycodi/metrics"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "vycodi-host",
		Short:        "Run a vycodi file-serving host process",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "vycodi-host.json", "path to the host's JSON config file")
	if err := root.Execute(); err != nil {
		die(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := log.NewLogger(os.Stdout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := coordinator.NewFromAddress(cfg.RedisAddress(), cfg.DBDatabase, cfg.DBPassword)
	be, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}

	h, err := host.New(ctx, host.Config{
		Coord:      coord,
		Address:    cfg.Address,
		Port:       cfg.Port,
		Backend:    be,
		BucketPath: cfg.BucketPath,
		FilesDir:   cfg.FilesDir,
		Log:        logger,
	})
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		reg := metrics.New()
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: reg.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Println("vycodi-host: metrics server exited:", err)
			}
		}()
	}

	if err := h.Start(ctx); err != nil {
		return err
	}
	logger.Println("vycodi-host: started as host", h.ID(), "on", cfg.Address, cfg.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- h.Wait(ctx) }()

	select {
	case <-sig:
		logger.Println("vycodi-host: shutting down")
	case err := <-done:
		if err != nil {
			logger.Println("vycodi-host: host gave up:", err)
		}
	}

	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	return h.Shutdown(context.Background())
}

func openBackend(ctx context.Context, cfg config.BackendConfig) (backend.Backend, error) {
	switch cfg.Type {
	case "s3":
		return s3backend.NewFromEnv(ctx, cfg.Bucket)
	case "fs", "":
		return fsbackend.New(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("vycodi-host: unknown backend type %q", cfg.Type)
	}
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}
