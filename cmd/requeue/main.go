package main

import (
	"context"
	"flag"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/entity"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/repository"
)

var (
	configPath = flag.String("config", "config.yml", "path to the relayer config file")
	kind       = flag.String("kind", "", "record kind, message or token_transfer")
	recordID   = flag.String("id", "", "id of the failed record to re-queue")
)

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	id, err := uuid.Parse(*recordID)
	if err != nil {
		logger.WithError(err).Fatal("invalid record id")
	}
	if cfg.DBConfig == nil {
		logger.Fatal("postgres is not configured, nothing to re-queue")
	}

	ctx := context.Background()
	dbConn, err := db.NewDB(ctx, cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database")
	}
	defer dbConn.Close()

	repo := repository.NewRepo(dbConn)
	records := repo.RecordsByKind(entity.Kind(*kind))
	if records == nil {
		logger.WithField("kind", *kind).Fatal("unknown record kind")
	}

	recLogger := logger.WithFields(logrus.Fields{
		"kind": *kind,
		"id":   id,
	})
	if err = records.Requeue(ctx, id); err != nil {
		recLogger.WithError(err).Fatal("can't re-queue record")
	}
	rec, err := records.GetByID(ctx, id)
	if err != nil {
		recLogger.WithError(err).Fatal("can't read re-queued record")
	}
	recLogger.WithField("state", rec.Header().State).Info("record has been re-queued")
}
