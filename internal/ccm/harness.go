package ccm

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edvin/ccmbridge/internal/archive"
	"github.com/edvin/ccmbridge/internal/config"
	"github.com/edvin/ccmbridge/internal/version"
)

// StorePassword protects every bundled keystore and truststore.
const StorePassword = "scylla1sfun"

var (
	windowsCommand = []string{"powershell.exe", "-ExecutionPolicy", "Unrestricted", "ccm.py"}
	unixCommand    = []string{"ccm"}

	scyllaEnterprise = regexp.MustCompile(`^\d{4}\.`)

	// cassandraForScylla is assumed when only a Scylla version is configured.
	cassandraForScylla = version.MustParse("3.0")
)

// Harness is the immutable runtime view of a Config shared by every cluster of a test
// process: the subprocess environment, default versions and install arguments, and
// the credential material used for TLS clusters.
type Harness struct {
	cfg      *config.Config
	logger   zerolog.Logger
	runner   *Runner
	env      []string
	archiver *archive.Archiver

	installArgs []string
	cassandra   *version.Number
	dse         *version.Number
	scylla      string

	credsFS   fs.FS
	credsOnce sync.Once
	creds     Credentials
}

type Option func(*Harness)

// WithArchiver uploads the logs of clusters that are kept after a failure.
func WithArchiver(a *archive.Archiver) Option {
	return func(h *Harness) { h.archiver = a }
}

// WithCredentialsFS reads keystores from fsys instead of CCM_CREDENTIALS_DIR.
func WithCredentialsFS(fsys fs.FS) Option {
	return func(h *Harness) { h.credsFS = fsys }
}

func NewHarness(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Harness{
		cfg:    cfg,
		logger: logger.With().Str("component", "ccm").Logger(),
		scylla: strings.TrimSpace(cfg.ScyllaVersion),
	}
	if cfg.CredentialsDir != "" {
		h.credsFS = os.DirFS(cfg.CredentialsDir)
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.resolveGlobalVersions(); err != nil {
		return nil, err
	}
	h.installArgs = installArgs(cfg)
	h.env = environment(os.Environ(), cfg)

	command := unixCommand
	if cfg.IsWindows() {
		command = windowsCommand
	}
	h.runner = NewRunner(logger, command, h.env, cfg.CommandTimeout)

	event := h.logger.Info().Strs("install_args", h.installArgs)
	switch {
	case h.dse != nil:
		event = event.Str("dse", h.dse.String())
	case h.scylla != "":
		event = event.Str("scylla", h.scylla)
	}
	if h.cassandra != nil {
		event = event.Str("cassandra", h.cassandra.String())
	}
	event.Msg("clusters will by default use the configured version")

	return h, nil
}

func (h *Harness) resolveGlobalVersions() error {
	v, err := version.ParseOptional(h.cfg.CassandraVersion)
	if err != nil {
		return fmt.Errorf("CASSANDRA_VERSION: %w", err)
	}
	switch {
	case h.cfg.DSE:
		if v == nil {
			return fmt.Errorf("DSE requires CASSANDRA_VERSION to hold the DSE version")
		}
		cassandra := version.CassandraForDSE(*v)
		h.dse = v
		h.cassandra = &cassandra
	case v != nil:
		h.cassandra = v
	case h.scylla != "":
		cassandra := cassandraForScylla
		h.cassandra = &cassandra
	}
	return nil
}

// installArgs are the create options used when a builder has no explicit version.
// An install directory wins over a branch, which wins over a release version.
func installArgs(cfg *config.Config) []string {
	var args []string
	switch {
	case strings.TrimSpace(cfg.CassandraDirectory) != "":
		dir, err := filepath.Abs(strings.TrimSpace(cfg.CassandraDirectory))
		if err != nil {
			dir = cfg.CassandraDirectory
		}
		args = append(args, "--install-dir="+dir)
	case strings.TrimSpace(cfg.CassandraBranch) != "":
		args = append(args, "-v git:"+strings.ReplaceAll(strings.TrimSpace(cfg.CassandraBranch), `"`, ""))
	case strings.TrimSpace(cfg.ScyllaVersion) != "":
		args = append(args, "--scylla", "-v release:"+strings.TrimSpace(cfg.ScyllaVersion))
	case strings.TrimSpace(cfg.CassandraVersion) != "":
		args = append(args, "-v "+strings.TrimSpace(cfg.CassandraVersion))
	}
	if cfg.DSE {
		args = append(args, "--dse")
	}
	return args
}

// environment inherits base and applies the PATH, JAVA_HOME and Scylla product
// overrides. Later entries win when the list is handed to exec.
func environment(base []string, cfg *config.Config) []string {
	env := make([]string, 0, len(base)+3)
	env = append(env, base...)
	if cfg.CCMPath != "" {
		env = append(env, "PATH="+cfg.CCMPath+string(os.PathListSeparator)+envValue(base, "PATH"))
	}
	if cfg.CCMJavaHome != "" {
		env = append(env, "JAVA_HOME="+cfg.CCMJavaHome)
	}
	if scyllaEnterprise.MatchString(strings.TrimSpace(cfg.ScyllaVersion)) {
		env = append(env, "SCYLLA_PRODUCT=enterprise")
	}
	return env
}

func (h *Harness) Config() *config.Config { return h.cfg }

// Environment returns a copy of the subprocess environment.
func (h *Harness) Environment() []string {
	return append([]string(nil), h.env...)
}

func (h *Harness) InstallArgs() []string {
	return append([]string(nil), h.installArgs...)
}

// CassandraVersion is the default Cassandra version, or nil when none is configured.
func (h *Harness) CassandraVersion() *version.Number { return h.cassandra }

// DSEVersion is the default DSE version, or nil unless DSE is enabled.
func (h *Harness) DSEVersion() *version.Number { return h.dse }

// ScyllaVersion is the configured Scylla release, or "".
func (h *Harness) ScyllaVersion() string { return h.scylla }

func (h *Harness) IsScylla() bool { return h.scylla != "" }

func (h *Harness) IsDSE() bool { return h.cfg.DSE }

// Credentials holds the paths of the extracted TLS material. A path is empty when its
// file could not be extracted.
type Credentials struct {
	ClientTruststore    string
	ClientKeystore      string
	ClientPrivateKey    string
	ClientCertChain     string
	ServerTruststore    string
	ServerTruststorePEM string
	ServerKeystore      string
	ServerPrivateKey    string
	ServerCertChain     string
}

func (c Credentials) files() []string {
	return []string{
		c.ClientTruststore, c.ClientKeystore, c.ClientPrivateKey, c.ClientCertChain,
		c.ServerTruststore, c.ServerTruststorePEM, c.ServerKeystore, c.ServerPrivateKey, c.ServerCertChain,
	}
}

// Credentials extracts the bundled keystores to temporary files on first use.
func (h *Harness) Credentials() Credentials {
	h.credsOnce.Do(func() {
		if h.credsFS == nil {
			h.logger.Warn().Msg("CCM_CREDENTIALS_DIR is not set, SSL-enabled servers may fail to start")
			return
		}
		h.creds = Credentials{
			ClientTruststore:    h.extract("client.truststore"),
			ClientKeystore:      h.extract("client.keystore"),
			ClientPrivateKey:    h.extract("client.key"),
			ClientCertChain:     h.extract("client.crt"),
			ServerTruststore:    h.extract("server.truststore"),
			ServerTruststorePEM: h.extract("server.truststore.pem"),
			ServerKeystore:      h.extract("server.keystore"),
			ServerPrivateKey:    h.extract("server.key"),
			ServerCertChain:     h.extract("server.crt"),
		}
	})
	return h.creds
}

func (h *Harness) extract(name string) string {
	path, err := h.copyToTemp(name)
	if err != nil {
		h.logger.Warn().Err(err).Str("file", name).Msg("failure to write keystore, SSL-enabled servers may fail to start")
		return ""
	}
	h.logger.Debug().Str("file", name).Str("path", path).Msg("created store file")
	return path
}

func (h *Harness) copyToTemp(name string) (string, error) {
	src, err := h.credsFS.Open(name)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "ccm-*-"+name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// Close deletes the extracted credential files. Call it once every cluster is closed.
func (h *Harness) Close() error {
	h.credsOnce.Do(func() {})
	var errs []error
	for _, f := range h.creds.files() {
		if f == "" {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
