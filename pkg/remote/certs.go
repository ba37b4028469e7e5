package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ALPN is the application protocol negotiated on every connection.
const ALPN = "pcx/1"

var nameEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// KeyFromSeed derives a node key from an operator supplied seed string.
func KeyFromSeed(seed string) ed25519.PrivateKey {
	h := blake2b.Sum256(append([]byte("pcx_ed25519"), seed...))
	return ed25519.NewKeyFromSeed(h[:])
}

// RandomKey returns a fresh node key for callers without a stable identity.
func RandomKey() ed25519.PrivateKey {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("reading random key: %v", err))
	}
	return key
}

// NodeName is the DNS name a node's certificate carries: "p" followed by the
// base32 encoding of its public key.
func NodeName(pub ed25519.PublicKey) string {
	return "p" + nameEncoding.EncodeToString(pub)
}

// ParseNodeName recovers the public key from a name made by NodeName.
func ParseNodeName(name string) (ed25519.PublicKey, error) {
	rest, ok := strings.CutPrefix(name, "p")
	if !ok {
		return nil, fmt.Errorf("node name %q does not start with p", name)
	}
	pub, err := nameEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("node name %q: %w", name, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("node name %q holds %d key bytes", name, len(pub))
	}
	return ed25519.PublicKey(pub), nil
}

// generateCertificate creates a self-signed certificate for key.
func generateCertificate(key ed25519.PrivateKey) (tls.Certificate, error) {
	pub := key.Public().(ed25519.PublicKey)
	name := NodeName(pub)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: name},
		DNSNames:              []string{name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// peerVerifier checks that the peer presents an ed25519 certificate named
// after its own key and that accept admits the key.
func peerVerifier(accept func(ed25519.PublicKey) error) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no certificate provided by peer")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("failed to parse peer certificate: %w", err)
		}
		pub, ok := cert.PublicKey.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("peer certificate does not use Ed25519 key")
		}
		if len(cert.DNSNames) != 1 || cert.DNSNames[0] != NodeName(pub) {
			return fmt.Errorf("peer certificate names %v do not match its key", cert.DNSNames)
		}
		return accept(pub)
	}
}

// pinnedKey accepts only want, or any key when want is nil.
func pinnedKey(want ed25519.PublicKey) func(ed25519.PublicKey) error {
	return func(pub ed25519.PublicKey) error {
		if want != nil && !pub.Equal(want) {
			return fmt.Errorf("peer key %s is not the expected %s", NodeName(pub), NodeName(want))
		}
		return nil
	}
}

func serverTLSConfig(key ed25519.PrivateKey, accept func(ed25519.PublicKey) error) (*tls.Config, error) {
	cert, err := generateCertificate(key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		MinVersion:            tls.VersionTLS13,
		NextProtos:            []string{ALPN},
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: peerVerifier(accept),
	}, nil
}

// clientTLSConfig skips chain verification: nodes are self-signed and are
// identified by key instead.
func clientTLSConfig(key ed25519.PrivateKey, server ed25519.PublicKey) (*tls.Config, error) {
	cert, err := generateCertificate(key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		MinVersion:            tls.VersionTLS13,
		NextProtos:            []string{ALPN},
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: peerVerifier(pinnedKey(server)),
	}, nil
}
