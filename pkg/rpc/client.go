package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/cuemby/fabrik/pkg/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// PeerClient dials another host's Fabric and forwards invocations to it.
// Generalized from warren's pkg/client.Client (mTLS dial against a
// manager node) to "mTLS dial against a shard-owning peer host".
type PeerClient struct {
	conn   *grpc.ClientConn
	client *wire.FabricClient
}

// DialPeer opens an mTLS connection to addr using a certificate issued
// by the cluster's CertAuthority, forcing the JSON wire codec since no
// protobuf code exists to negotiate the default codec (see pkg/rpc/wire).
func DialPeer(addr string, cert *tls.Certificate, caPool *x509.CertPool) (*PeerClient, error) {
	creds := credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS12,
	})

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial peer %s: %w", addr, err)
	}
	return &PeerClient{conn: conn, client: wire.NewFabricClient(conn)}, nil
}

// DialPeerWithCA issues a fresh client certificate from ca for clientID
// and dials addr with it — the peer-to-peer analogue of warren's
// NewClientWithToken join-token flow, but using the cluster's own CA
// directly since fabric peers are already cluster members.
func DialPeerWithCA(addr, clientID string, ca *security.CertAuthority) (*PeerClient, error) {
	cert, err := ca.IssueClientCertificate(clientID)
	if err != nil {
		return nil, fmt.Errorf("issue peer certificate: %w", err)
	}
	rootDER := ca.GetRootCACert()
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("parse root CA: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(rootCert)
	return DialPeer(addr, cert, pool)
}

func (c *PeerClient) Close() error {
	return c.conn.Close()
}

// Invoke satisfies gateway.Invoker, letting a PeerClient stand in for a
// local *Fabric whenever the Gateway runs in its own process and reaches
// a runtime host over the wire instead of in-process.
func (c *PeerClient) Invoke(ctx context.Context, req *wire.InvokeRequest) (*wire.InvokeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	return c.client.Invoke(ctx, req)
}

const defaultCallTimeout = 30 * time.Second
