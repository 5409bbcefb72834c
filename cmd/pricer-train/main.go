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
	"github.com/diamondlab/pricer/pkg/train"
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

	reg, err := connect.Open(cfg.RegistryURL, cfg.RegistryToken, cfg.ArtifactRoot)
	if err != nil {
		logrus.Fatal(err)
	}

	result, err := train.Run(ctx, &cfg, reg)
	if err != nil {
		logrus.Fatal(err)
	}

	logrus.Infof("run %s: version %d in Production, rmse %.2f over %d features",
		result.RunID, result.Version, result.RMSE, len(result.Columns))
}
