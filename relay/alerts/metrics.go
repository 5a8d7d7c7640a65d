package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertStuckConfirmation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "relayer",
		Name:      "stuck_confirmation",
		Help:      "Shows records that stay in the SENT state for too long, the value is the record age in seconds.",
	}, []string{"kind", "source_chain_id", "dest_chain_id", "external_id", "tx_hash"})
	AlertFailedRelay = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "relayer",
		Name:      "failed_relay",
		Help:      "Shows records that could not be delivered to the destination chain.",
	}, []string{"kind", "source_chain_id", "dest_chain_id", "external_id", "retry_count"})
	AlertRetryingRelay = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "relayer",
		Name:      "retrying_relay",
		Help:      "Shows confirmed records with failed delivery attempts, the value is the number of retries.",
	}, []string{"kind", "source_chain_id", "dest_chain_id", "external_id"})
)
