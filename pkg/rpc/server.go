package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/cuemby/fabrik/pkg/security"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Server hosts the fabric's gRPC endpoint for this process, generalized
// from warren's pkg/api.Server (same mTLS setup, same grpc.Server
// lifecycle; the service registered is Fabric instead of WarrenAPI).
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     zerolog.Logger
}

// NewServer builds a grpc.Server requiring mTLS from every caller and
// forcing the JSON codec (pkg/rpc/wire) since this build carries no
// protobuf-generated types to negotiate the default codec with.
func NewServer(addr string, nodeCert *tls.Certificate, caPool *x509.CertPool, fabric wire.FabricServer, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	creds := credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{*nodeCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    caPool,
		MinVersion:   tls.VersionTLS12,
	})

	gs := grpc.NewServer(
		grpc.Creds(creds),
		grpc.ForceServerCodec(wire.Codec()),
	)
	wire.RegisterFabricServer(gs, fabric)

	return &Server{grpcServer: gs, listener: lis, logger: logger}, nil
}

// NewServerFromCA issues this node's own server certificate from ca
// before building the listener — the common case when a fabric Server
// is started as part of a cluster node bringing itself up.
func NewServerFromCA(addr, nodeID string, dnsNames []string, ips []net.IP, ca *security.CertAuthority, fabric wire.FabricServer, logger zerolog.Logger) (*Server, error) {
	cert, err := ca.IssueNodeCertificate(nodeID, "rpc", dnsNames, ips)
	if err != nil {
		return nil, fmt.Errorf("issue node certificate: %w", err)
	}
	rootDER := ca.GetRootCACert()
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("parse root CA: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(rootCert)
	return NewServer(addr, cert, pool, fabric, logger)
}

// Serve blocks accepting connections until Stop is called.
func (s *Server) Serve() error {
	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("rpc fabric listening")
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully drains in-flight invocations before shutting down.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
