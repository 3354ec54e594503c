package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/qstream-io/qstream/internal/cluster/api/rest"
	"github.com/qstream-io/qstream/internal/cluster/service"
	"github.com/qstream-io/qstream/internal/shared/config"
	"github.com/qstream-io/qstream/internal/shared/logging"
	"github.com/qstream-io/qstream/pkg/pipelines"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	pipelineNames := flag.String("pipelines", "ascending-sum", "comma separated demo pipelines to submit on startup")
	flag.Parse()

	cfg, err := config.LoadCluster(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	cluster, err := service.NewCluster(cfg.State, logger)
	if err != nil {
		logger.Fatal("Failed to start cluster", "error", err)
	}
	defer cluster.Close()

	for _, name := range strings.Split(*pipelineNames, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		builder, err := pipelines.Get(name)
		if err != nil {
			logger.Fatal("Unknown pipeline", "name", name, "available", pipelines.List())
		}
		jobID, err := cluster.SubmitJob(builder())
		if err != nil {
			logger.Fatal("Failed to submit pipeline", "name", name, "error", err)
		}
		logger.Info("Pipeline submitted", "name", name, "job_id", jobID.String())
	}

	server := rest.NewServer(cfg.REST, cluster, logger)

	go func() {
		logger.Info("Starting control plane API", "addr", cfg.REST.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
