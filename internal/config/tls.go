package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSFiles names the PEM files of a client TLS identity.
type TLSFiles struct {
	Cert string
	Key  string
	// CA verifies the server. Without it the server certificate is not checked, which
	// is what the self-signed test clusters need.
	CA         string
	ServerName string
}

// ClientTLS builds a *tls.Config from the files. Returns nil, nil when no cert or key
// is set.
func (f TLSFiles) ClientTLS() (*tls.Config, error) {
	if f.Cert == "" && f.Key == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(f.Cert, f.Key)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ServerName:         f.ServerName,
		InsecureSkipVerify: f.CA == "",
	}

	if f.CA != "" {
		caPEM, err := os.ReadFile(f.CA)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA cert %s", f.CA)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}
