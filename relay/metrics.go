package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatestHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "ingestor",
		Name:      "latest_head_block",
		Help:      "Shows the latest observed head block of the source chain.",
	}, []string{"chain_id"})
	LatestProcessedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "ingestor",
		Name:      "latest_processed_block",
		Help:      "Shows the ingestion cursor of the source chain. Bridge events up to this block are stored in the DB.",
	}, []string{"chain_id"})
	SyncedChain = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "ingestor",
		Name:      "synced",
		Help:      "Shows if the ingestor cursor is close to the head of the source chain.",
	}, []string{"chain_id"})
	IngestedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "ingestor",
		Name:      "ingested_records_total",
		Help:      "Number of new records created from source chain events.",
	}, []string{"chain_id", "kind"})
	RecordTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "relay",
		Name:      "record_transitions_total",
		Help:      "Number of applied record state transitions.",
	}, []string{"chain_id", "kind", "state"})
	RelayAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "relay",
		Name:      "attempts_total",
		Help:      "Number of destination submissions by outcome.",
	}, []string{"chain_id", "kind", "outcome"})
	ChainHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "health",
		Name:      "chain_healthy",
		Help:      "Shows 1 if the chain RPC is considered healthy.",
	}, []string{"chain_id"})
)
