package ccm

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/sethvargo/go-retry"

	"github.com/edvin/ccmbridge/internal/config"
	"github.com/edvin/ccmbridge/internal/version"
)

// maxCQLProtocol is the newest protocol the probe driver negotiates.
const maxCQLProtocol = version.V4

// CQLConfig returns a driver configuration reaching every node of the cluster.
func (c *Cluster) CQLConfig() *gocql.ClusterConfig {
	cfg := gocql.NewCluster(c.ContactPoints()...)
	c.configureCQL(cfg)
	return cfg
}

func (c *Cluster) configureCQL(cfg *gocql.ClusterConfig) {
	cfg.Port = c.ports.binary
	cfg.ProtoVersion = int(c.ProtocolVersionCapped(maxCQLProtocol))
	cfg.Timeout = 10 * time.Second
	cfg.ConnectTimeout = 5 * time.Second
	cfg.Consistency = gocql.One
	if !c.ssl {
		return
	}
	creds := c.h.Credentials()
	tlsConfig, err := config.TLSFiles{Cert: creds.ClientCertChain, Key: creds.ClientPrivateKey}.ClientTLS()
	if err != nil {
		c.logger.Warn().Err(err).Msg("client certificate unavailable, connecting without one")
	}
	if tlsConfig == nil {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}
	cfg.SslOpts = &gocql.SslOptions{Config: tlsConfig}
}

// WaitForCQL retries until node n answers a query on the native protocol and returns
// the release version it reports.
func (c *Cluster) WaitForCQL(ctx context.Context, n int) (string, error) {
	cfg := gocql.NewCluster(c.ipOfNode(n))
	c.configureCQL(cfg)
	cfg.DisableInitialHostLookup = true

	var release string
	err := retry.Do(ctx, pollBackoff(c.portWait), func(ctx context.Context) error {
		session, err := cfg.CreateSession()
		if err != nil {
			return retry.RetryableError(err)
		}
		defer session.Close()

		if err := session.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&release); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("waiting for CQL on node %d: %w", n, err)
	}
	c.logger.Debug().Int("node", n).Str("release_version", release).Msg("node answers CQL")
	return release, nil
}
