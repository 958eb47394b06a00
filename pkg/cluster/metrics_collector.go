package cluster

import (
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/metrics"
)

// MetricsCollector periodically samples cluster and worker state into the
// Prometheus gauges in pkg/metrics. It lives here, not in pkg/metrics,
// because it needs Cluster's read path; pkg/metrics must stay free of
// dependencies on anything that imports it.
type MetricsCollector struct {
	cluster *Cluster
	stopCh  chan struct{}
}

// NewMetricsCollector creates a new metrics collector for a Cluster node.
func NewMetricsCollector(cluster *Cluster) *MetricsCollector {
	return &MetricsCollector{
		cluster: cluster,
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic metrics collection on a 15s tick.
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectNodeMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectNodeMetrics() {
	nodes, err := c.cluster.ListNodes()
	if err != nil {
		return
	}

	counts := make(map[domain.ClusterNodeRole]map[domain.ClusterNodeStatus]int)
	for _, node := range nodes {
		if counts[node.Role] == nil {
			counts[node.Role] = make(map[domain.ClusterNodeStatus]int)
		}
		counts[node.Role][node.Status]++
	}

	for role, statuses := range counts {
		for status, count := range statuses {
			metrics.NodesTotal.WithLabelValues(string(role), string(status)).Set(float64(count))
		}
	}
}

func (c *MetricsCollector) collectRaftMetrics() {
	if c.cluster.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.cluster.GetRaftStats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		metrics.RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		metrics.RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(uint64); ok {
		metrics.RaftPeers.Set(float64(peers))
	}
}
