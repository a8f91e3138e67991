package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTLS_Empty(t *testing.T) {
	tlsCfg, err := TLSFiles{}.ClientTLS()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestClientTLS_CertOnly(t *testing.T) {
	certPath, keyPath, _ := generateTestCert(t)

	tlsCfg, err := TLSFiles{Cert: certPath, Key: keyPath}.ClientTLS()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.Nil(t, tlsCfg.RootCAs)
	assert.True(t, tlsCfg.InsecureSkipVerify)
}

func TestClientTLS_Errors(t *testing.T) {
	certPath, keyPath, _ := generateTestCert(t)
	badCA := filepath.Join(t.TempDir(), "bad-ca.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("not a cert"), 0o600))

	tests := []struct {
		name  string
		files TLSFiles
		want  string
	}{
		{"missing cert", TLSFiles{Cert: "/nonexistent/cert.pem", Key: "/nonexistent/key.pem"}, "load client cert"},
		{"missing CA", TLSFiles{Cert: certPath, Key: keyPath, CA: "/nonexistent/ca.pem"}, "read CA cert"},
		{"invalid CA", TLSFiles{Cert: certPath, Key: keyPath, CA: badCA}, "failed to parse CA cert"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.files.ClientTLS()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestClientTLS_WithCA(t *testing.T) {
	certPath, keyPath, caPath := generateTestCert(t)

	tlsCfg, err := TLSFiles{Cert: certPath, Key: keyPath, CA: caPath, ServerName: "node1"}.ClientTLS()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.NotNil(t, tlsCfg.RootCAs)
	assert.False(t, tlsCfg.InsecureSkipVerify)
	assert.Equal(t, "node1", tlsCfg.ServerName)
}

// generateTestCert writes a CA and a client cert it signed, returning the cert, key
// and CA paths.
func generateTestCert(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ccm test CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	caCertPath := filepath.Join(dir, "ca.pem")
	writePEM(t, caCertPath, "CERTIFICATE", caCertDER)

	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	clientTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "ccm-client"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	clientCertDER, err := x509.CreateCertificate(rand.Reader, clientTemplate, caTemplate, &clientKey.PublicKey, caKey)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "cert.pem")
	writePEM(t, certPath, "CERTIFICATE", clientCertDER)

	keyDER, err := x509.MarshalECPrivateKey(clientKey)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "key.pem")
	writePEM(t, keyPath, "EC PRIVATE KEY", keyDER)

	return certPath, keyPath, caCertPath
}

func writePEM(t *testing.T, path, blockType string, data []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, pem.Encode(f, &pem.Block{Type: blockType, Bytes: data}))
}
