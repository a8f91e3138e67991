package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the process-wide harness settings. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	// CassandraVersion is the default version clusters are created with. With DSE set it
	// is the DSE version.
	CassandraVersion string `yaml:"cassandra_version"`
	ScyllaVersion    string `yaml:"scylla_version"`
	DSE              bool   `yaml:"dse"`
	// CassandraDirectory installs from a local checkout instead of a release.
	CassandraDirectory string `yaml:"cassandra_directory"`
	// CassandraBranch installs from a git branch.
	CassandraBranch string `yaml:"cassandra_branch"`
	// CCMPath is prepended to PATH for every ccm invocation.
	CCMPath string `yaml:"ccm_path"`
	// CCMJavaHome overrides JAVA_HOME for every ccm invocation.
	CCMJavaHome string `yaml:"ccm_java_home"`
	OS          string `yaml:"os"`

	IPPrefix        string        `yaml:"ip_prefix"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	PortWaitTimeout time.Duration `yaml:"port_wait_timeout"`
	CredentialsDir  string        `yaml:"credentials_dir"`
	LogLevel        string        `yaml:"log_level"`

	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig points at the S3 bucket preserved cluster logs are uploaded to.
type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether preserved logs should be uploaded.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

func Load() (*Config, error) {
	commandTimeout, err := getDuration("CCM_COMMAND_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	portWaitTimeout, err := getDuration("CCM_PORT_WAIT_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CassandraVersion:   getEnv("CASSANDRA_VERSION", ""),
		ScyllaVersion:      getEnv("SCYLLA_VERSION", ""),
		DSE:                getBool("DSE"),
		CassandraDirectory: getEnv("CASSANDRA_DIRECTORY", ""),
		CassandraBranch:    getEnv("CASSANDRA_BRANCH", ""),
		CCMPath:            getEnv("CCM_PATH", ""),
		CCMJavaHome:        getEnv("CCM_JAVA_HOME", ""),
		OS:                 getEnv("CCM_OS", runtime.GOOS),
		IPPrefix:           getEnv("CCM_IP_PREFIX", "127.0.1."),
		CommandTimeout:     commandTimeout,
		PortWaitTimeout:    portWaitTimeout,
		CredentialsDir:     getEnv("CCM_CREDENTIALS_DIR", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Archive: ArchiveConfig{
			Bucket:    getEnv("CCM_ARCHIVE_BUCKET", ""),
			Prefix:    getEnv("CCM_ARCHIVE_PREFIX", "ccm-logs/"),
			Endpoint:  getEnv("CCM_ARCHIVE_ENDPOINT", ""),
			Region:    getEnv("CCM_ARCHIVE_REGION", "us-east-1"),
			AccessKey: getEnv("CCM_ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("CCM_ARCHIVE_SECRET_KEY", ""),
		},
	}

	if path := getEnv("CCM_CONFIG_FILE", ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// overlayFile applies the non-zero settings of a YAML file on top of cfg.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	overlay(&c.CassandraVersion, file.CassandraVersion)
	overlay(&c.ScyllaVersion, file.ScyllaVersion)
	overlay(&c.CassandraDirectory, file.CassandraDirectory)
	overlay(&c.CassandraBranch, file.CassandraBranch)
	overlay(&c.CCMPath, file.CCMPath)
	overlay(&c.CCMJavaHome, file.CCMJavaHome)
	overlay(&c.OS, file.OS)
	overlay(&c.IPPrefix, file.IPPrefix)
	overlay(&c.CredentialsDir, file.CredentialsDir)
	overlay(&c.LogLevel, file.LogLevel)
	overlay(&c.Archive.Bucket, file.Archive.Bucket)
	overlay(&c.Archive.Prefix, file.Archive.Prefix)
	overlay(&c.Archive.Endpoint, file.Archive.Endpoint)
	overlay(&c.Archive.Region, file.Archive.Region)
	overlay(&c.Archive.AccessKey, file.Archive.AccessKey)
	overlay(&c.Archive.SecretKey, file.Archive.SecretKey)
	if file.DSE {
		c.DSE = true
	}
	if file.CommandTimeout > 0 {
		c.CommandTimeout = file.CommandTimeout
	}
	if file.PortWaitTimeout > 0 {
		c.PortWaitTimeout = file.PortWaitTimeout
	}
	return nil
}

// Validate checks the settings that would otherwise fail deep inside a ccm invocation.
func (c *Config) Validate() error {
	var missing []string
	if c.IPPrefix == "" {
		missing = append(missing, "CCM_IP_PREFIX")
	}
	if c.CommandTimeout <= 0 {
		missing = append(missing, "CCM_COMMAND_TIMEOUT")
	}
	if c.PortWaitTimeout <= 0 {
		missing = append(missing, "CCM_PORT_WAIT_TIMEOUT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or invalid settings: %s", strings.Join(missing, ", "))
	}
	if c.DSE && c.ScyllaVersion != "" {
		return fmt.Errorf("DSE and SCYLLA_VERSION are mutually exclusive")
	}
	if c.Archive.Enabled() && (c.Archive.AccessKey == "") != (c.Archive.SecretKey == "") {
		return fmt.Errorf("CCM_ARCHIVE_ACCESS_KEY and CCM_ARCHIVE_SECRET_KEY must both be set")
	}
	return nil
}

// IsWindows reports whether ccm runs through its PowerShell launcher.
func (c *Config) IsWindows() bool {
	return strings.HasPrefix(strings.ToLower(c.OS), "windows")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
