// Command vycodi-worker runs a single worker process: it watches a
// configured set of queues, executes reserved tasks through the
// registered processors, and heartbeats its own liveness until it
// receives a termination signal.
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
	"gitlab.com/vycodi/vycodi/config"
	"gitlab.com/vycodi/vycodi/coordinator"
	"gitlab.com/vycodi/vycodi/fileclient"
	"gitlab.com/vycodi/vycodi/metrics"
	"gitlab.com/vycodi/vycodi/processor"
	"gitlab.com/vycodi/vycodi/processor/builtin"
	"gitlab.com/vycodi/vycodi/queue"
	"gitlab.com/vycodi/vycodi/task"
	"gitlab.com/vycodi/vycodi/worker"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "vycodi-worker",
		Short:        "Run a vycodi worker process",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "vycodi-worker.json", "path to the worker's JSON config file")
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

	coord := coordinator.NewFromAddress(cfg.RedisAddress(), cfg.DBDatabase, cfg.DBPassword)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	taskLoader := task.NewLoader(coord)
	queues := make([]*queue.Queue, 0, len(cfg.Queues))
	for _, name := range cfg.Queues {
		q, err := queue.Get(ctx, name, coord, taskLoader)
		if err != nil {
			return err
		}
		queues = append(queues, q)
	}

	registry := processor.NewRegistry()
	builtin.Register(registry)
	builtin.RegisterEcho(registry)

	fileLoader := fileclient.NewLoader(coord, fileclient.NewPool())

	w, err := worker.New(ctx, worker.Config{
		Coord:        coord,
		RunRoot:      cfg.RunDir,
		Policy:       queue.DefaultPolicy{},
		Queues:       queues,
		ProcessorReg: registry,
		FileLoader:   fileLoader,
		PoolSize:     cfg.PoolSize,
		Log:          logger,
	})
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		reg := metrics.New()
		w.SetMetrics(reg)
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: reg.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Println("vycodi-worker: metrics server exited:", err)
			}
		}()
	}

	if err := w.Start(ctx); err != nil {
		return err
	}
	logger.Println("vycodi-worker: started, watching", len(queues), "queue(s)")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Println("vycodi-worker: shutting down")

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	return w.Shutdown(shutdownCtx)
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}
