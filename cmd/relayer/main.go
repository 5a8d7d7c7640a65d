package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/bridge-relayer/config"
	"github.com/omni/bridge-relayer/db"
	"github.com/omni/bridge-relayer/ethclient"
	"github.com/omni/bridge-relayer/logging"
	"github.com/omni/bridge-relayer/presenter"
	"github.com/omni/bridge-relayer/relay"
	"github.com/omni/bridge-relayer/relay/alerts"
	"github.com/omni/bridge-relayer/repository"
)

var configPath = flag.String("config", "config.yml", "path to the relayer config file")

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dbConn *db.DB
	var repo *repository.Repo
	if cfg.DBConfig != nil {
		dbConn, err = db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
		if err != nil {
			logger.WithError(err).Fatal("can't connect to database and apply migrations")
		}
		defer dbConn.Close()
		repo = repository.NewRepo(dbConn)
	} else {
		logger.Warn("postgres is not configured, relayer state will be kept in memory")
		repo = repository.NewMemoryRepo()
	}

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err2 := http.ListenAndServe(":2112", nil)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
		}
	}()

	clients := make(map[string]ethclient.Client, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		client, err2 := ethclient.NewClient(chainCfg.RPC.Host, chainCfg.RPC.Timeout, chainCfg.RPC.RPS, chainCfg.ChainID)
		if err2 != nil {
			logger.WithError(err2).WithField("chain_name", chainCfg.Name).Fatal("can't dial rpc client")
		}
		clients[chainCfg.ChainID] = client
	}

	locker := relay.NewNoopLocker()
	if cfg.Relayer.Redis != nil {
		redisLocker := relay.NewRedisLocker(cfg.Relayer.Redis)
		if err = redisLocker.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("can't connect to redis")
		}
		defer redisLocker.Close()
		locker = redisLocker
	}

	r, err := relay.NewRelayer(ctx, logger, repo, cfg, clients, locker)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize relayer")
	}

	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), repo, r.Chains(), r.Health())
		go func() {
			err2 := pr.Serve(cfg.Presenter.Host)
			if err2 != nil {
				logger.WithError(err2).Fatal("can't serve presenter")
			}
		}()
	}

	if len(cfg.Alerts) > 0 {
		if dbConn == nil {
			logger.Warn("alerts require postgres, skipping alert manager")
		} else {
			alertManager, err2 := alerts.NewAlertManager(logger.WithField("service", "alerts"), dbConn, cfg)
			if err2 != nil {
				logger.WithError(err2).Fatal("can't initialize alert manager")
			}
			go alertManager.Start(ctx, r.IsSynced)
		}
	}

	r.Start(ctx)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	for range c {
		cancel()
		logger.Warn("caught CTRL-C, gracefully terminating")
		return
	}
}
