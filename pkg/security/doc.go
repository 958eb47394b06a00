/*
Package security provides cryptographic services for fabrik clusters.

This package implements three capabilities: secrets encryption using
AES-256-GCM, a Certificate Authority (CA) for mutual TLS between cluster
nodes and the RPC fabric, and certificate lifecycle management for both
cluster peers and CLI clients.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                    Security Architecture                    │
	└─────┬───────────────────────┬──────────────────┬────────────┘
	      │                       │                  │
	      ▼                       ▼                  ▼
	┌─────────────┐      ┌────────────────┐   ┌──────────────┐
	│   Secrets   │      │       CA       │   │ Certificate  │
	│ Encryption  │      │  (Root + Sub)  │   │  Management  │
	└─────┬───────┘      └────────┬───────┘   └──────┬───────┘
	      │                       │                   │
	      ▼                       ▼                   ▼
	  AES-256-GCM         RSA 4096-bit          90-day validity
	  SecretsManager      10-year validity      30-day rotation check

## Cluster Encryption Key

All security is rooted in the cluster encryption key, a 32-byte key derived
from the cluster ID during bootstrap:

	clusterKey = SHA-256(clusterID)  // 32 bytes for AES-256

Encrypt and Decrypt use this key (set by SetClusterEncryptionKey) to
protect the CA's private key. SecretsManager applies the same
AES-256-GCM scheme to other values under a key it is given; no package
outside this one uses it. The key lives only in memory on
cluster nodes and must be supplied again when joining or restoring from
backup.

# Secrets Encryption

SecretsManager encrypts and decrypts secret values with AES-256 in
Galois/Counter Mode, giving authenticated encryption: a modified
ciphertext, wrong key, or wrong nonce all fail decryption rather than
silently returning garbage.

	Plaintext → AES-256-GCM → Ciphertext + Authentication Tag
	                ↑
	            32-byte key

Stored form is `nonce || ciphertext || tag`, a fresh random 12-byte nonce
per encryption so no two secrets ever reuse one.

# Certificate Authority

## Root CA

The CA is a hierarchical PKI rooted in a long-lived self-signed
certificate, created once during cluster bootstrap and stored encrypted
under the cluster key:

	Root CA (self-signed)
	├── 10-year validity
	├── RSA 4096-bit key
	├── KeyUsage: CertSign, CRLSign
	└── Subject: CN=Warren Root CA, O=Fabrik Cluster

## Peer and client certificates

The CA issues shorter-lived certificates to every cluster node (gateway,
runtime host, registry) and to CLI/CI clients dialing in over
pkg/rpc.DialPeer:

	Peer Certificate                     Client Certificate
	├── 90-day validity                  ├── 90-day validity
	├── RSA 2048-bit key                 ├── ExtKeyUsage: ClientAuth
	├── ExtKeyUsage: ServerAuth+ClientAuth └── Subject: CN=cli-{clientID}
	└── Subject: CN={role}-{nodeID}

Every fabric connection is therefore mutually authenticated: a runtime
host verifies the gateway's certificate and vice versa, and a bare
address with no certificate on disk is a hard dial error (see
pkg/rpc.PeerClient and cmd/fabrik's dialFabric), never a silent
plaintext fallback.

# Usage

## Secrets

	sm, err := security.NewSecretsManagerFromPassword(clusterID)
	ciphertext, err := sm.EncryptSecret([]byte("upstream-api-key"))
	plaintext, err := sm.DecryptSecret(ciphertext) // fails if tampered

## Certificate Authority

	ca := security.NewCertAuthority(store)
	if err := ca.Initialize(); err != nil { ... } // generates root CA once
	cert, err := ca.IssueNodeCertificate(nodeID, "runtime-host", dnsNames, ips)

## Verifying a peer

	if err := ca.VerifyCertificate(peerCert); err != nil {
		// not issued by this cluster's CA; reject the connection
	}

# Storage Integration

CA material is persisted through pkg/storage's SaveCA as JSON CAData,
with the root key encrypted by Encrypt before it is stored:

	Bucket "ca":      root certificate (plaintext, public) + root key (encrypted)

Secrets built by SecretsManager are not persisted by this package, and
pkg/storage has no secrets bucket.

# Threat Model

Covered: network eavesdropping (TLS 1.2+), unauthorized peers
(mTLS), secret tampering (AEAD), node impersonation (CA-signed certs).

Not covered: a compromised cluster encryption key, a compromised CA
private key, or a compromised node with local disk access — those
require key rotation and host hardening outside this package's scope.

# See Also

  - pkg/storage - storage backend holding the encrypted CA material
  - pkg/cluster - CA lifecycle and cluster bootstrap
  - pkg/rpc - mTLS transport built on this package's certificates
*/
package security
