package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/diamondlab/pricer/pkg/config"
	"github.com/diamondlab/pricer/pkg/registry/connect"
	"github.com/diamondlab/pricer/pkg/server"
	"github.com/diamondlab/pricer/pkg/serving"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatal(err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model load failure is not fatal: the server starts degraded and
	// /predict explains the situation until a model is promoted and the
	// process restarted.
	var service *serving.Service
	reg, err := connect.Open(cfg.RegistryURL, cfg.RegistryToken, cfg.ArtifactRoot)
	if err != nil {
		logrus.Errorf("Error connecting to registry: %v", err)
		logrus.Warn("Backend will start but predictions will not work until the registry is reachable.")
		service = serving.NewService(nil)
	} else {
		snapshot, err := serving.Load(ctx, reg, cfg.ModelName)
		if err != nil {
			logrus.Errorf("Error loading model: %v", err)
			logrus.Warn("Backend will start but predictions will not work until a model is available.")
		}
		service = serving.NewService(snapshot)
	}

	if err := server.Run(ctx, &cfg, service); err != nil {
		logrus.Fatal(err)
	}
}
