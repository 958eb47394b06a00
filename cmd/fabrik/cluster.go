package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/fabrik/pkg/cluster"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage a fabrik control-plane node's Raft membership",
}

var clusterBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Bootstrap a new single-node fabrik cluster",
	Long: `Bootstrap starts this node as the sole voter of a brand-new Raft
group, initializes its certificate authority, and prints join tokens
that other nodes use to join the cluster (pkg/cluster.Cluster.Bootstrap).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		joinAddr, _ := cmd.Flags().GetString("join-listen-addr")
		if nodeID == "" {
			nodeID = cfg.Cluster.NodeID
		}
		if bindAddr == "" {
			bindAddr = cfg.Cluster.BindAddr
		}
		if dataDir == "" {
			dataDir = cfg.Cluster.DataDir
		}

		c, err := cluster.NewCluster(&cluster.Config{NodeID: nodeID, BindAddr: bindAddr, DataDir: dataDir})
		if err != nil {
			return fmt.Errorf("create cluster node: %w", err)
		}
		if err := c.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		fmt.Printf("cluster %s bootstrapped at %s (data: %s)\n", nodeID, bindAddr, dataDir)

		workerToken, err := c.GenerateJoinToken("worker", 24*time.Hour)
		if err != nil {
			return fmt.Errorf("generate worker join token: %w", err)
		}
		voterToken, err := c.GenerateJoinToken("voter", 24*time.Hour)
		if err != nil {
			return fmt.Errorf("generate voter join token: %w", err)
		}
		fmt.Printf("worker join token: %s\n", workerToken.Token)
		fmt.Printf("voter join token:  %s\n", voterToken.Token)

		srv := newJoinServer(c)
		go func() {
			if err := http.ListenAndServe(joinAddr, srv); err != nil {
				log.Errorf("join listener stopped: %v", err)
			}
		}()
		fmt.Printf("join listener: http://%s\n", joinAddr)

		fmt.Println("cluster node running; press Ctrl+C to stop")
		waitForSignal()
		return c.Shutdown()
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this node to an existing fabrik cluster as a Raft voter",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		leaderJoinAddr, _ := cmd.Flags().GetString("leader")
		token, _ := cmd.Flags().GetString("token")
		if leaderJoinAddr == "" {
			return fmt.Errorf("--leader is required")
		}
		if token == "" {
			return fmt.Errorf("--token is required")
		}
		if nodeID == "" {
			nodeID = cfg.Cluster.NodeID
		}
		if bindAddr == "" {
			bindAddr = cfg.Cluster.BindAddr
		}
		if dataDir == "" {
			dataDir = cfg.Cluster.DataDir
		}

		c, err := cluster.NewCluster(&cluster.Config{NodeID: nodeID, BindAddr: bindAddr, DataDir: dataDir})
		if err != nil {
			return fmt.Errorf("create cluster node: %w", err)
		}

		joinFn := func(nodeID, bindAddr, token string) error {
			return postJoinRequest(leaderJoinAddr, joinRequest{NodeID: nodeID, BindAddr: bindAddr, Token: token})
		}
		if err := c.Join(leaderJoinAddr, token, joinFn); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
		fmt.Printf("node %s joined cluster via %s\n", nodeID, leaderJoinAddr)

		fmt.Println("cluster node running; press Ctrl+C to stop")
		waitForSignal()
		return c.Shutdown()
	},
}

func init() {
	clusterCmd.AddCommand(clusterBootstrapCmd)
	clusterCmd.AddCommand(clusterJoinCmd)

	clusterBootstrapCmd.Flags().String("node-id", "", "Unique node ID (default from config)")
	clusterBootstrapCmd.Flags().String("bind-addr", "", "Raft bind address (default from config)")
	clusterBootstrapCmd.Flags().String("data-dir", "", "Data directory (default from config)")
	clusterBootstrapCmd.Flags().String("join-listen-addr", "127.0.0.1:7945", "Address the join-request listener binds")

	clusterJoinCmd.Flags().String("node-id", "", "Unique node ID (default from config)")
	clusterJoinCmd.Flags().String("bind-addr", "", "Raft bind address (default from config)")
	clusterJoinCmd.Flags().String("data-dir", "", "Data directory (default from config)")
	clusterJoinCmd.Flags().String("leader", "", "Leader's join-listener address (host:port)")
	clusterJoinCmd.Flags().String("token", "", "Join token issued by the leader")
}

// joinRequest is the payload a joining node POSTs to the leader's join
// listener. This is ops tooling local to cmd/fabrik, not part of the
// RPC fabric's wire protocol (spec.md §1 excludes CLI tooling from the
// core; cluster bootstrap/join is exactly that kind of collaborator).
type joinRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
	Token    string `json:"token"`
}

func postJoinRequest(leaderAddr string, req joinRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := http.Post(fmt.Sprintf("http://%s/join", leaderAddr), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("contact leader at %s: %w", leaderAddr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("leader rejected join request: %s", resp.Status)
	}
	return nil
}

// newJoinServer builds the leader-side HTTP handler that validates a
// join token and adds the requesting node as a Raft voter
// (cluster.Cluster.AddVoter requires this node to already be leader).
func newJoinServer(c *cluster.Cluster) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if _, err := c.ValidateJoinToken(req.Token); err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		if err := c.AddVoter(req.NodeID, req.BindAddr); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
