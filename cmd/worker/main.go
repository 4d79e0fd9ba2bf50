package main

import (
	"github.com/sirupsen/logrus"

	"github.com/Liberatex/Rotation/internal/config"
	"github.com/Liberatex/Rotation/internal/database"
	"github.com/Liberatex/Rotation/internal/worker"
)

func main() {
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	db := database.Connect(cfg)

	logrus.WithField("sweep_interval_min", cfg.SweepIntervalMin).Info("worker starting")
	if err := worker.Run(cfg, db); err != nil {
		logrus.WithError(err).Fatal("worker stopped")
	}
}
