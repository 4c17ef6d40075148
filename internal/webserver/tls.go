package webserver

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certName     = "display.crt"
	keyName      = "display.key"
	certLifetime = 365 * 24 * time.Hour
	// certRenew regenerates a cached cert this close to expiry.
	certRenew = 30 * 24 * time.Hour
)

// selfSignedTLS loads the cached server cert from dir, issuing a new one
// when it is missing, unreadable, close to expiry or does not name host.
func selfSignedTLS(dir, host string, now time.Time) (*tls.Config, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	certFile := filepath.Join(dir, certName)
	keyFile := filepath.Join(dir, keyName)

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil || !certUsable(cert, host, now) {
		if err := issueCert(certFile, keyFile, certHosts(host), now); err != nil {
			return nil, fmt.Errorf("issue cert: %w", err)
		}
		if cert, err = tls.LoadX509KeyPair(certFile, keyFile); err != nil {
			return nil, err
		}
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// certHosts is what a cert for host must name. Loopback names are always
// included; wildcard listen hosts add nothing.
func certHosts(host string) []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	switch host {
	case "", "0.0.0.0", "::", "localhost", "127.0.0.1", "::1":
		return hosts
	}
	return append(hosts, host)
}

func certUsable(cert tls.Certificate, host string, now time.Time) bool {
	if len(cert.Certificate) == 0 {
		return false
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return false
	}
	if now.Add(certRenew).After(leaf.NotAfter) {
		return false
	}
	for _, h := range certHosts(host) {
		if leaf.VerifyHostname(h) != nil {
			return false
		}
	}
	return true
}

func issueCert(certFile, keyFile string, hosts []string, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return err
	}

	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"display"}, CommonName: hosts[len(hosts)-1]},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(certLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	return errors.Join(
		os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644),
		os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600),
	)
}
