package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cuemby/fabrik/pkg/cluster"
	"github.com/cuemby/fabrik/pkg/fsoverlay"
	"github.com/cuemby/fabrik/pkg/gateway"
	"github.com/cuemby/fabrik/pkg/gateway/openapi"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/oplog"
	"github.com/cuemby/fabrik/pkg/reconciler"
	"github.com/cuemby/fabrik/pkg/registry"
	"github.com/cuemby/fabrik/pkg/rpc"
	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/cuemby/fabrik/pkg/runtime"
	"github.com/cuemby/fabrik/pkg/scheduler"
	"github.com/cuemby/fabrik/pkg/security"
	"github.com/cuemby/fabrik/pkg/tracing"
	"github.com/cuemby/fabrik/pkg/worker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a fabrik process in one of its server roles",
}

var serveGatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the HTTP gateway (binding resolution, Rib evaluation, response mapping)",
	RunE: func(cmd *cobra.Command, args []string) error {
		gc := cfg.Gateway

		def := gateway.NewCompiledAPIDefinition()
		if path, _ := cmd.Flags().GetString("openapi"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read openapi document: %w", err)
			}
			loaded, err := openapi.Load(context.Background(), data)
			if err != nil {
				return fmt.Errorf("compile openapi document: %w", err)
			}
			def = loaded
		}

		overlay, err := fsoverlay.NewStore(gc.OverlayDir)
		if err != nil {
			return fmt.Errorf("open filesystem overlay store: %w", err)
		}

		invoker, closeFabric, err := dialFabric(gc.FabricAddr)
		if err != nil {
			return fmt.Errorf("connect to rpc fabric: %w", err)
		}
		defer closeFabric()

		var auth *gateway.AuthConfig
		if gc.OAuthClientID != "" {
			sessions := gateway.NewMemorySessionStore()
			auth = &gateway.AuthConfig{
				StateSecret: []byte(gc.StateSigningKey),
				Sessions:    sessions,
				SessionTTL:  time.Hour,
			}
		}

		gw := gateway.NewGateway(def, invoker, overlay, auth)

		shutdownTracing, err := startTracing(cmd.Context())
		if err != nil {
			return err
		}
		defer shutdownTracing(context.Background())

		fmt.Printf("gateway listening on %s\n", gc.ListenAddr)
		errCh := make(chan error, 1)
		srv := &http.Server{Addr: gc.ListenAddr, Handler: gw}
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case <-sigChan():
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

var serveRuntimeHostCmd = &cobra.Command{
	Use:   "runtime-host",
	Short: "Run a worker runtime host: worker actors, local oplog, and the RPC fabric endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := cfg.Runtime

		c, err := cluster.NewCluster(&cluster.Config{NodeID: rc.NodeID, BindAddr: cfg.Cluster.BindAddr, DataDir: rc.DataDir})
		if err != nil {
			return fmt.Errorf("create cluster node: %w", err)
		}
		if err := c.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap local oplog raft group: %w", err)
		}
		store := c.Store()
		broker := c.GetEventBroker()

		oplogSvc := oplog.NewService(c, store, broker, rc.SnapshotEvery)
		limiter := worker.NewLimiter(rc.DefaultFuel)
		engine := runtime.NewMockEngine()
		workers := worker.NewManager(engine, oplogSvc, store, limiter, broker)

		shards := rpc.NewShardTable(1, rc.NodeID)
		shards.Assign(0, rc.NodeID)
		fabric := rpc.NewFabric(shards, workers, store, oplogSvc, nil)

		recon := reconciler.NewReconciler(store, workers, broker)
		recon.Start()
		defer recon.Stop()

		sched := scheduler.NewScheduler(store, shards, broker)
		sched.Start()
		defer sched.Stop()

		srv, err := rpc.NewServerFromCA(rc.RPCAddr, rc.NodeID, []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")}, c.CertAuthority(), fabric, log.Logger)
		if err != nil {
			return fmt.Errorf("start rpc fabric server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve() }()
		fmt.Printf("runtime host %s listening on %s\n", rc.NodeID, rc.RPCAddr)

		metrics.RegisterComponent("oplog", true, "ready")
		metrics.RegisterComponent("fabric", true, "ready")

		select {
		case <-sigChan():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}
		srv.Stop()
		return c.Shutdown()
	},
}

var serveRegistryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Run the registry's HTTP administration endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRegistryStore(context.Background(), cfg.Registry)
		if err != nil {
			return fmt.Errorf("open registry store: %w", err)
		}
		defer store.Close()

		reg := registry.NewRegistry(store)
		mux := newRegistryMux(reg, nil)

		fmt.Printf("registry listening on %s\n", cfg.Registry.ListenAddr)
		srv := &http.Server{Addr: cfg.Registry.ListenAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case <-sigChan():
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

var serveAllInOneCmd = &cobra.Command{
	Use:   "all-in-one",
	Short: "Run cluster, runtime, gateway and registry together in a single process",
	Long: `all-in-one stands up every role in one process against the mock
Wasm engine — the local-development replacement for warren's embedded
single-process containerd mode (pkg/embedded), minus any containerd
dependency since this platform executes Wasm components, not OCI
containers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cluster.NewCluster(&cluster.Config{NodeID: cfg.Cluster.NodeID, BindAddr: cfg.Cluster.BindAddr, DataDir: cfg.Cluster.DataDir})
		if err != nil {
			return fmt.Errorf("create cluster node: %w", err)
		}
		if err := c.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		defer c.Shutdown()
		store := c.Store()
		broker := c.GetEventBroker()

		oplogSvc := oplog.NewService(c, store, broker, cfg.Runtime.SnapshotEvery)
		limiter := worker.NewLimiter(cfg.Runtime.DefaultFuel)
		engine := runtime.NewMockEngine()
		workers := worker.NewManager(engine, oplogSvc, store, limiter, broker)

		shards := rpc.NewShardTable(1, cfg.Cluster.NodeID)
		shards.Assign(0, cfg.Cluster.NodeID)
		fabric := rpc.NewFabric(shards, workers, store, oplogSvc, nil)

		recon := reconciler.NewReconciler(store, workers, broker)
		recon.Start()
		defer recon.Stop()

		sched := scheduler.NewScheduler(store, shards, broker)
		sched.Start()
		defer sched.Stop()

		overlay, err := fsoverlay.NewStore(cfg.Gateway.OverlayDir)
		if err != nil {
			return fmt.Errorf("open filesystem overlay store: %w", err)
		}
		gw := gateway.NewGateway(gateway.NewCompiledAPIDefinition(), fabric, overlay, nil)

		registryStore, err := registry.NewBoltStore(cfg.Registry.DataDir)
		if err != nil {
			return fmt.Errorf("open registry store: %w", err)
		}
		defer registryStore.Close()
		reg := registry.NewRegistry(registryStore)
		driver := newRolloutDriver(reg, workers, store)

		adminMux := http.NewServeMux()
		adminMux.Handle("/metrics", metrics.Handler())
		adminMux.Handle("/health", metrics.HealthHandler())
		adminMux.Handle("/ready", metrics.ReadyHandler())
		adminMux.Handle("/live", metrics.LivenessHandler())
		adminMux.Handle("/registry/", http.StripPrefix("/registry", newRegistryMux(reg, driver.onDeploymentActivated)))
		metrics.SetVersion(Version)
		metrics.RegisterComponent("cluster", true, "bootstrapped")
		metrics.RegisterComponent("oplog", true, "ready")
		metrics.RegisterComponent("gateway", true, "ready")
		metrics.RegisterComponent("registry", true, "ready")

		adminAddr := "127.0.0.1:9090"
		go func() {
			if err := http.ListenAndServe(adminAddr, adminMux); err != nil {
				log.Errorf("admin endpoint stopped: %v", err)
			}
		}()
		fmt.Printf("admin endpoints: http://%s/{metrics,health,ready,live,registry}\n", adminAddr)

		httpSrv := &http.Server{Addr: cfg.Gateway.ListenAddr, Handler: gw}
		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.ListenAndServe() }()
		fmt.Printf("gateway listening on %s\n", cfg.Gateway.ListenAddr)
		fmt.Println("all-in-one node running; press Ctrl+C to stop")

		select {
		case <-sigChan():
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.AddCommand(serveGatewayCmd)
	serveCmd.AddCommand(serveRuntimeHostCmd)
	serveCmd.AddCommand(serveRegistryCmd)
	serveCmd.AddCommand(serveAllInOneCmd)

	serveGatewayCmd.Flags().String("openapi", "", "Path to an OpenAPI 3 document carrying x-fabrik-binding extensions")
}

// sigChan returns a channel that fires once on SIGINT/SIGTERM, used by
// every serve subcommand's shutdown select.
func sigChan() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		waitForSignal()
		close(ch)
	}()
	return ch
}

// dialFabric connects the gateway to a runtime host's RPC fabric over
// mTLS, using a CLI-style certificate the gateway operator obtains the
// same way warren's CLI does (pkg/client.NewClient): no cert on disk is
// a hard failure, not a silent insecure fallback.
func dialFabric(addr string) (gateway.Invoker, func(), error) {
	if addr == "" {
		return noopInvoker{}, func() {}, nil
	}
	certDir, err := security.GetCLICertDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve gateway cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, nil, fmt.Errorf("gateway certificate not found at %s; join the cluster with 'fabrik cluster join' first", certDir)
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load gateway certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load cluster CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	client, err := rpc.DialPeer(addr, cert, pool)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// noopInvoker is used when no fabric address is configured, so `serve
// gateway` can still start (and serve static/CORS bindings) without a
// runtime host available.
type noopInvoker struct{}

func (noopInvoker) Invoke(ctx context.Context, req *wire.InvokeRequest) (*wire.InvokeResponse, error) {
	return nil, fmt.Errorf("no rpc fabric configured (set gateway.fabric_addr)")
}

func startTracing(ctx context.Context) (func(context.Context) error, error) {
	_, shutdown, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
	})
	return shutdown, err
}
