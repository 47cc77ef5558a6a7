// Package metrics exposes the node's counters and gauges as Prometheus
// collectors, sampled by the canary-monitor probe described in §6 ("a
// canary-monitor probe that samples a metrics endpoint and emits a JSON
// report"). The probe itself is an external collaborator out of this
// module's depth; this package only owns the endpoint it scrapes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ezchain/validator-core/pkg/chain"
	"github.com/ezchain/validator-core/pkg/errs"
	"github.com/ezchain/validator-core/pkg/router"
	"github.com/ezchain/validator-core/pkg/txpool"
)

// Collector holds every gauge/counter a node reports. All fields are safe
// for concurrent use: prometheus collectors are self-synchronizing.
type Collector struct {
	registry *prometheus.Registry

	poolTotalReceived   prometheus.Counter
	poolValidReceived   prometheus.Counter
	poolInvalidReceived prometheus.Counter
	poolDuplicates      prometheus.Counter

	chainTotalNodes     prometheus.Gauge
	chainMainChainNodes prometheus.Gauge
	chainForkNodes      prometheus.Gauge
	chainOrphanedNodes  prometheus.Gauge
	chainTipHeight      prometheus.Gauge

	routerDelivered prometheus.Counter
	routerDropped   prometheus.Counter
	routerRejected  prometheus.Counter

	verifications *prometheus.CounterVec
}

// New constructs a Collector, registering all of its collectors with a
// fresh, process-local registry (rather than the global DefaultRegisterer)
// so a test or an embedded node can run multiple Collectors side by side
// without name collisions.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		poolTotalReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ezchain_pool_total_received", Help: "Total SubmitTxInfo entries received by the transaction pool.",
		}),
		poolValidReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ezchain_pool_valid_received", Help: "SubmitTxInfo entries accepted by the transaction pool.",
		}),
		poolInvalidReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ezchain_pool_invalid_received", Help: "SubmitTxInfo entries rejected by the transaction pool.",
		}),
		poolDuplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "ezchain_pool_duplicates", Help: "Duplicate-submitter-in-round rejections.",
		}),
		chainTotalNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ezchain_chain_fork_tree_nodes", Help: "Total nodes in the fork tree.",
		}),
		chainMainChainNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ezchain_chain_main_chain_nodes", Help: "Nodes currently on the main chain.",
		}),
		chainForkNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ezchain_chain_fork_nodes", Help: "Nodes on a non-main fork branch.",
		}),
		chainOrphanedNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ezchain_chain_orphaned_nodes", Help: "Nodes beyond the max fork height, labeled orphaned.",
		}),
		chainTipHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ezchain_chain_tip_height", Help: "Main chain tip height.",
		}),
		routerDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ezchain_router_delivered_total", Help: "Envelopes dispatched to at least one handler.",
		}),
		routerDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ezchain_router_dropped_total", Help: "Envelopes dropped as duplicate message ids.",
		}),
		routerRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "ezchain_router_rejected_total", Help: "Handler invocations that returned an error.",
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ezchain_vpb_verifications_total", Help: "VPB verification outcomes, labeled by result and error code.",
		}, []string{"result", "code"}),
	}
}

// RecordPoolStats adds the change between two pool snapshots to the pool
// counters.
// Prometheus counters are monotonic, so the delta since the last snapshot
// — not the snapshot's absolute value — is what gets added; a pool that
// never shrinks its own counters makes this safe to call repeatedly.
func (c *Collector) RecordPoolStats(prev, cur txpool.Stats) {
	addDelta(c.poolTotalReceived, prev.TotalReceived, cur.TotalReceived)
	addDelta(c.poolValidReceived, prev.ValidReceived, cur.ValidReceived)
	addDelta(c.poolInvalidReceived, prev.InvalidReceived, cur.InvalidReceived)
	addDelta(c.poolDuplicates, prev.Duplicates, cur.Duplicates)
}

// RecordForkStatistics sets the chain gauges to the given snapshot.
func (c *Collector) RecordForkStatistics(s chain.ForkStatistics) {
	c.chainTotalNodes.Set(float64(s.TotalNodes))
	c.chainMainChainNodes.Set(float64(s.MainChainNodes))
	c.chainForkNodes.Set(float64(s.ForkNodes))
	c.chainOrphanedNodes.Set(float64(s.OrphanedNodes))
	c.chainTipHeight.Set(float64(s.TipHeight))
}

// RecordRouterStats adds the change between two router snapshots to the
// router counters, using the same delta convention as RecordPoolStats.
func (c *Collector) RecordRouterStats(prev, cur router.Stats) {
	addDelta(c.routerDelivered, prev.Delivered, cur.Delivered)
	addDelta(c.routerDropped, prev.Dropped, cur.Dropped)
	addDelta(c.routerRejected, prev.Rejected, cur.Rejected)
}

// RecordVerification increments the verification outcome counter. code is
// empty for a successful verification.
func (c *Collector) RecordVerification(valid bool, code errs.Code) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.verifications.WithLabelValues(result, string(code)).Inc()
}

// Handler returns the HTTP handler a canary-monitor probe scrapes.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func addDelta(counter prometheus.Counter, prev, cur uint64) {
	if cur <= prev {
		return
	}
	counter.Add(float64(cur - prev))
}
