package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/ethclient"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/relay"
	"github.com/omni/bridge-relayer/repository"
)

var (
	configPath = flag.String("config", "config.yml", "path to the relayer config file")
	chainName  = flag.String("chain", "", "name of the chain to re-ingest blocks from")
	fromBlock  = flag.Uint("fromBlock", 0, "starting block")
	toBlock    = flag.Uint("toBlock", 0, "ending block")
)

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	chainCfg, err := cfg.GetChainConfigByName(*chainName)
	if err != nil {
		logger.WithError(err).Fatal("can't find chain config")
	}
	if *fromBlock < chainCfg.StartBlock {
		fromBlock = &chainCfg.StartBlock
	}
	if *toBlock == 0 {
		logger.Fatal("toBlock is not specified")
	}
	if *toBlock < *fromBlock {
		logger.WithFields(logrus.Fields{
			"from_block": *fromBlock,
			"to_block":   *toBlock,
		}).Fatal("toBlock < fromBlock")
	}
	if cfg.DBConfig == nil {
		logger.Fatal("postgres is not configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()
	repo := repository.NewRepo(dbConn)

	client, err := ethclient.NewClient(chainCfg.RPC.Host, chainCfg.RPC.Timeout, chainCfg.RPC.RPS, chainCfg.ChainID)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc client")
	}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		for range c {
			cancel()
			logger.Warn("caught CTRL-C, gracefully terminating")
			return
		}
	}()

	chain := relay.NewChain(chainCfg, client)
	chainLogger := logger.WithField("chain_name", chain.Name)
	health, err := relay.NewHealthMonitor(ctx, chainLogger, repo.ChainStates, []*relay.Chain{chain}, cfg.Relayer.HealthCheckInterval, cfg.Relayer.FailureThreshold)
	if err != nil {
		chainLogger.WithError(err).Fatal("can't load chain health")
	}
	destinations := make([]string, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		destinations = append(destinations, c.ChainID)
	}
	ingestor, err := relay.NewIngestor(ctx, chainLogger, repo, chain, health, destinations)
	if err != nil {
		chainLogger.WithError(err).Fatal("can't initialize ingestor")
	}

	if err = ingestor.ProcessBlockRange(ctx, *fromBlock, *toBlock); err != nil {
		chainLogger.WithError(err).Fatal("can't re-ingest block range")
	}
	chainLogger.WithFields(logrus.Fields{
		"from_block": *fromBlock,
		"to_block":   *toBlock,
	}).Info("block range has been re-ingested")
}
