package cluster

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/security"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Cluster is a single control-plane node's view of the Raft-replicated
// oplog fabric. Every worker's durable state — its oplog entries, its
// status, its promises — is a command applied through this node's Raft
// group; BoltStore (or a future replicated backend) just materializes
// what Raft has already agreed on.
type Cluster struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft         *raft.Raft
	fsm          *FSM
	store        storage.Store
	tokenManager *TokenManager
	ca           *security.CertAuthority
	eventBroker  *events.Broker
}

// Config holds configuration for creating a Cluster node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// NewCluster creates a new Cluster node, opening its local store but not
// yet joining or bootstrapping a Raft group.
func NewCluster(cfg *Config) (*Cluster, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	fsm := NewFSM(store)
	tokenManager := NewTokenManager()
	ca := security.NewCertAuthority(store)

	eventBroker := events.NewBroker()
	eventBroker.Start()

	return &Cluster{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		fsm:          fsm,
		store:        store,
		tokenManager: tokenManager,
		ca:           ca,
		eventBroker:  eventBroker,
	}, nil
}

func raftConfig(nodeID string) *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(nodeID)

	// Edge/LAN deployments tolerate tighter timeouts than Raft's WAN-biased
	// defaults; this tuning targets control-plane failover under 10s.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	return config
}

func (c *Cluster) newRaft() (*raft.Raft, error) {
	config := raftConfig(c.nodeID)

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	return r, nil
}

// Bootstrap initializes a new single-node Raft group with this node as
// the only voter, and initializes the cluster's Certificate Authority.
func (c *Cluster) Bootstrap() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(c.nodeID), Address: raft.ServerAddress(c.bindAddr)},
		},
	}
	if err := c.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	if err := c.initializeCA(); err != nil {
		return fmt.Errorf("failed to initialize CA: %w", err)
	}

	log.Info(fmt.Sprintf("cluster node %s bootstrapped at %s", c.nodeID, c.bindAddr))
	return nil
}

// Join starts this node's Raft instance, calls joinFn to ask the existing
// leader to add this node as a voter, then loads the cluster's CA material
// from storage.
func (c *Cluster) Join(leaderAddr string, token string, joinFn func(nodeID, bindAddr, token string) error) error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	if err := joinFn(c.nodeID, c.bindAddr, token); err != nil {
		return fmt.Errorf("failed to join cluster: %w", err)
	}

	if err := c.ca.LoadFromStore(); err != nil {
		return fmt.Errorf("failed to load CA after join: %w", err)
	}

	log.Info(fmt.Sprintf("cluster node %s joined via %s", c.nodeID, leaderAddr))
	return nil
}

// AddVoter adds a new control-plane node to the Raft group. Only the
// leader can do this.
func (c *Cluster) AddVoter(nodeID, address string) error {
	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", c.LeaderAddr())
	}

	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}

	c.PublishEvent(&events.Event{Type: events.EventClusterNodeJoined, Message: nodeID})
	return nil
}

// RemoveServer removes a control-plane node from the Raft group.
func (c *Cluster) RemoveServer(nodeID string) error {
	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}

	c.PublishEvent(&events.Event{Type: events.EventClusterNodeLeft, Message: nodeID})
	return nil
}

// GetClusterServers reports the current Raft voter configuration.
func (c *Cluster) GetClusterServers() ([]raft.Server, error) {
	if c.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := c.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (c *Cluster) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the current Raft leader's bind address, or "" if
// there is none.
func (c *Cluster) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// GetRaftStats reports Raft state for /status endpoints and metrics
// collection.
func (c *Cluster) GetRaftStats() map[string]interface{} {
	if c.raft == nil {
		return nil
	}

	stats := map[string]interface{}{
		"state":          c.raft.State().String(),
		"last_log_index": c.raft.LastIndex(),
		"applied_index":  c.raft.AppliedIndex(),
		"leader":         string(c.raft.Leader()),
		"peers":          uint64(0),
	}

	if configFuture := c.raft.GetConfiguration(); configFuture.Error() == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	}

	return stats
}

// NodeID returns this node's Raft server ID.
func (c *Cluster) NodeID() string { return c.nodeID }

// GetEventBroker returns the cluster's event broker.
func (c *Cluster) GetEventBroker() *events.Broker { return c.eventBroker }

// Store exposes the cluster node's local BoltStore so callers that need
// to layer the oplog or worker runtime on top of the same node don't
// open a second handle onto the same data directory.
func (c *Cluster) Store() storage.Store { return c.store }

// PublishEvent publishes an event to all subscribers.
func (c *Cluster) PublishEvent(event *events.Event) {
	if c.eventBroker != nil {
		c.eventBroker.Publish(event)
	}
}

// TokenManager exposes the node's join-token manager.
func (c *Cluster) TokenManager() *TokenManager { return c.tokenManager }

// CertAuthority exposes the cluster's CA for the RPC fabric's mTLS setup.
func (c *Cluster) CertAuthority() *security.CertAuthority { return c.ca }

// Apply submits a command to the Raft group and waits for it to commit.
func (c *Cluster) Apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	future := c.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command: %w", err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}

	return nil
}

// --- Cluster node membership (read path goes straight to the local store) ---

func (c *Cluster) RegisterNode(node *domain.ClusterNode) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return c.Apply(Command{Op: OpCreateClusterNode, Data: data})
}

func (c *Cluster) UpdateNode(node *domain.ClusterNode) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return c.Apply(Command{Op: OpUpdateClusterNode, Data: data})
}

func (c *Cluster) DeregisterNode(id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return c.Apply(Command{Op: OpDeleteClusterNode, Data: data})
}

func (c *Cluster) GetNode(id string) (*domain.ClusterNode, error) {
	return c.store.GetClusterNode(id)
}

func (c *Cluster) ListNodes() ([]*domain.ClusterNode, error) {
	return c.store.ListClusterNodes()
}

// GenerateJoinToken issues a time-limited token a new node presents to
// join the cluster. Only the leader may mint tokens.
func (c *Cluster) GenerateJoinToken(role string, ttl time.Duration) (*JoinToken, error) {
	if !c.IsLeader() {
		return nil, fmt.Errorf("not the leader, tokens can only be generated by the leader")
	}
	return c.tokenManager.GenerateToken(role, ttl)
}

// ValidateJoinToken validates a join token and returns its role.
func (c *Cluster) ValidateJoinToken(token string) (string, error) {
	return c.tokenManager.ValidateToken(token)
}

// Shutdown gracefully stops the event broker, the Raft group, and the
// local store, in that order.
func (c *Cluster) Shutdown() error {
	if c.eventBroker != nil {
		c.eventBroker.Stop()
	}

	if c.raft != nil {
		if err := c.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}

	return nil
}

func (c *Cluster) initializeCA() error {
	if c.ca.IsInitialized() {
		return nil
	}

	if err := c.ca.LoadFromStore(); err == nil {
		log.Info("loaded existing certificate authority")
		return nil
	}

	log.Info("initializing new certificate authority")
	if err := c.ca.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CA: %w", err)
	}
	if err := c.ca.SaveToStore(); err != nil {
		return fmt.Errorf("failed to save CA: %w", err)
	}

	certDir, err := security.GetCertDir("cluster", c.nodeID)
	if err != nil {
		return fmt.Errorf("failed to get cert directory: %w", err)
	}
	if security.CertExists(certDir) {
		return nil
	}

	host, _, err := net.SplitHostPort(c.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to parse bind address: %w", err)
	}
	var ipAddresses []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ipAddresses = []net.IP{ip}
	}
	dnsNames := []string{fmt.Sprintf("cluster-%s", c.nodeID), "localhost"}

	cert, err := c.ca.IssueNodeCertificate(c.nodeID, "cluster", dnsNames, ipAddresses)
	if err != nil {
		return fmt.Errorf("failed to issue node certificate: %w", err)
	}
	if err := security.SaveCertToFile(cert, certDir); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := security.SaveCACertToFile(c.ca.GetRootCACert(), certDir); err != nil {
		return fmt.Errorf("failed to save CA certificate: %w", err)
	}

	return nil
}
