package ccm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/ccmbridge/internal/metrics"
	"github.com/edvin/ccmbridge/internal/version"
)

type state int

const (
	stateCreated state = iota
	stateStarted
	stateStopped
	stateRemoved
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateStarted:
		return "started"
	case stateStopped:
		return "stopped"
	case stateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

type clusterPorts struct {
	storage int
	thrift  int
	binary  int
	sni     int
	jmx     []int
}

// Cluster is a cluster created by a Builder. All methods are safe for concurrent use;
// commands against one cluster run one at a time.
type Cluster struct {
	mu sync.Mutex

	h        *Harness
	logger   zerolog.Logger
	runner   *Runner
	portWait time.Duration

	name      string
	ipPrefix  string
	nodes     []int
	cassandra version.Number
	dse       *version.Number
	scylla    bool
	caps      version.Capabilities
	ports     clusterPorts
	added     []int
	jvmArgs   string
	sniProxy  bool
	ssl       bool
	dir       string

	state      state
	closed     bool
	keepLogs   bool
	unregister func()
}

func newCluster(h *Harness, spec ClusterSpec, ports clusterPorts, cassandra version.Number, dse *version.Number, caps version.Capabilities, jvmArgs string) (*Cluster, error) {
	dir, err := os.MkdirTemp("", "ccm")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	c := &Cluster{
		h:         h,
		logger:    h.logger.With().Str("cluster", spec.Name).Logger(),
		runner:    h.runner,
		portWait:  h.cfg.PortWaitTimeout,
		name:      spec.Name,
		ipPrefix:  spec.IPPrefix,
		nodes:     spec.Nodes,
		cassandra: cassandra,
		dse:       dse,
		scylla:    h.IsScylla(),
		caps:      caps,
		ports:     ports,
		jvmArgs:   jvmArgs,
		sniProxy:  spec.SNIProxy,
		ssl:       sslEnabled(spec.CassandraConfig),
		dir:       dir,
	}
	c.unregister = register(c)
	metrics.ClusterOpened()
	c.logger.Debug().Str("dir", dir).Str("cassandra", cassandra.String()).Msg("cluster created")
	return c, nil
}

func sslEnabled(conf *Settings) bool {
	v, ok := conf.Get("client_encryption_options.enabled")
	return ok && fmt.Sprint(v) == "true"
}

func (c *Cluster) String() string { return "CCM cluster " + c.name }

func (c *Cluster) run(ctx context.Context, format string, args ...any) (string, error) {
	return c.runner.Run(ctx, c.dir, format, args...)
}

func (c *Cluster) startWaitArgs() string {
	var args string
	if c.caps.WaitOtherNotice {
		args += " --wait-other-notice"
	}
	if c.h.cfg.IsWindows() && c.caps.QuietWindows {
		args += " --quiet-windows"
	}
	return args
}

// Start starts every node and waits until all binary ports accept connections. It is
// a no-op when the cluster is already started.
func (c *Cluster) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == stateStarted {
		return nil
	}

	c.logger.Debug().Msg("starting cluster")
	cmd := "start" + c.jvmArgs + c.startWaitArgs()
	if c.sniProxy {
		cmd += " --sni-proxy --sni-port " + strconv.Itoa(c.ports.sni)
	}
	_, err := c.run(ctx, "%s", cmd)
	if err == nil {
		err = c.waitAllUp(ctx)
	}
	if err != nil {
		return c.startupFailure(ctx, 0, err)
	}
	c.state = stateStarted
	c.logger.Debug().Msg("cluster started")
	return nil
}

func (c *Cluster) waitAllUp(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for n := 1; n <= c.totalNodes(); n++ {
		addr := c.AddressOfNode(n)
		g.Go(func() error {
			c.logger.Debug().Str("addr", addr).Msg("waiting for binary protocol to show up")
			return waitForPort(gctx, addr, true, c.portWait)
		})
	}
	return g.Wait()
}

// startupFailure keeps the logs for postmortem and attaches whatever checklogerror
// reports.
func (c *Cluster) startupFailure(ctx context.Context, node int, err error) error {
	event := c.logger.Error().Err(err)
	if node > 0 {
		event = event.Int("node", node)
	}
	event.Msg("could not start cluster")

	var execErr *ExecError
	if errors.As(err, &execErr) {
		c.logger.Error().Msg("ccm output:\n" + execErr.Output)
	}
	c.keepLogs = true

	cctx, cancel := c.cleanupContext(ctx)
	defer cancel()
	logErrors := c.checkForErrors(cctx)
	if logErrors != "" {
		c.logger.Error().Msg("ccm check errors:\n" + logErrors)
	}
	metrics.StartupFailed()
	return &StartupError{Cluster: c.String(), Node: node, LogErrors: logErrors, Err: err}
}

// Stop stops every node gracefully. It is a no-op once the cluster is stopped, removed
// or closed.
func (c *Cluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop(ctx, false)
}

// ForceStop kills every node.
func (c *Cluster) ForceStop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop(ctx, true)
}

func (c *Cluster) stop(ctx context.Context, force bool) error {
	if c.closed || c.state == stateStopped || c.state == stateRemoved {
		return nil
	}
	cmd := "stop"
	if force {
		cmd += " --not-gently"
	}
	c.logger.Debug().Bool("force", force).Msg("stopping cluster")
	if _, err := c.run(ctx, "%s", cmd); err != nil {
		return err
	}
	c.state = stateStopped
	return nil
}

// Remove stops the cluster and deletes its state through the cluster manager.
func (c *Cluster) Remove(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(ctx)
}

func (c *Cluster) remove(ctx context.Context) error {
	if c.closed || c.state == stateRemoved {
		return nil
	}
	if err := c.stop(ctx, false); err != nil {
		return err
	}
	c.logger.Debug().Msg("removing cluster")
	if _, err := c.run(ctx, "remove"); err != nil {
		return err
	}
	c.state = stateRemoved
	return nil
}

// CheckForErrors returns the errors found in the node logs. A failing check is logged
// and reported as "".
func (c *Cluster) CheckForErrors(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkForErrors(ctx)
}

func (c *Cluster) checkForErrors(ctx context.Context) string {
	c.logger.Debug().Msg("checking for errors")
	out, err := c.run(ctx, "checklogerror")
	if err != nil {
		c.logger.Warn().Err(err).Msg("check for errors failed")
		return ""
	}
	return out
}

// SetKeepLogs makes Close stop the cluster and leave its directory in place.
func (c *Cluster) SetKeepLogs(keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keepLogs = keep
}

// Close releases the cluster. With keepLogs set the cluster is stopped and its
// directory kept (and archived when an archiver is configured); otherwise it is
// removed and the directory deleted. Only the deletion error is returned. Close is
// idempotent.
func (c *Cluster) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.logger.Debug().Msg("closing cluster")

	var err error
	if c.keepLogs {
		if stopErr := c.stop(ctx, false); stopErr != nil {
			c.logger.Warn().Err(stopErr).Msg("stop during close failed")
		}
		c.logger.Info().Str("dir", c.dir).Msg("error during tests, kept logs")
		if c.h.archiver != nil {
			if _, archErr := c.h.archiver.Archive(ctx, c.name, c.dir); archErr != nil {
				c.logger.Warn().Err(archErr).Msg("archiving logs failed")
			}
		}
	} else {
		if rmErr := c.remove(ctx); rmErr != nil {
			c.logger.Warn().Err(rmErr).Msg("remove during close failed")
		}
		if rmErr := os.RemoveAll(c.dir); rmErr != nil {
			err = fmt.Errorf("delete %s: %w", c.dir, rmErr)
		}
	}

	c.closed = true
	c.unregister()
	metrics.ClusterClosed()
	c.logger.Debug().Msg("closed cluster")
	return err
}

// cleanupContext keeps ctx's values but not its cancellation. Cleanup and diagnostics
// still run once the caller's deadline has passed, bounded by the command timeout.
func (c *Cluster) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.h.cfg.CommandTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (c *Cluster) totalNodes() int {
	total := 0
	for _, n := range c.nodes {
		total += n
	}
	return total
}

func (c *Cluster) ipOfNode(n int) string {
	return c.ipPrefix + strconv.Itoa(n)
}

func (c *Cluster) Name() string { return c.name }

// NodeCount returns a copy of the per-datacenter node counts.
func (c *Cluster) NodeCount() []int {
	return append([]int(nil), c.nodes...)
}

// ContactPoints returns the address of every node, in node order.
func (c *Cluster) ContactPoints() []string {
	total := c.totalNodes()
	points := make([]string, 0, total)
	for n := 1; n <= total; n++ {
		points = append(points, c.ipOfNode(n))
	}
	return points
}

// AddressOfNode returns host:port of the native protocol endpoint of node n.
func (c *Cluster) AddressOfNode(n int) string {
	return net.JoinHostPort(c.ipOfNode(n), strconv.Itoa(c.ports.binary))
}

// JMXAddressOfNode returns host:port of node n's JMX endpoint. Scylla binds JMX on the
// node address, the other flavors on localhost.
func (c *Cluster) JMXAddressOfNode(n int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	port := 0
	if n >= 1 && n <= len(c.ports.jmx) {
		port = c.ports.jmx[n-1]
	}
	host := "localhost"
	if c.scylla {
		host = c.ipOfNode(n)
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c *Cluster) CassandraVersion() version.Number { return c.cassandra }

// DSEVersion is nil unless this is a DSE cluster.
func (c *Cluster) DSEVersion() *version.Number { return c.dse }

func (c *Cluster) IsScylla() bool { return c.scylla }

func (c *Cluster) Capabilities() version.Capabilities { return c.caps }

// Dir is the working directory passed to every command as --config-dir.
func (c *Cluster) Dir() string { return c.dir }

func (c *Cluster) ClusterDir() string { return filepath.Join(c.dir, c.name) }

func (c *Cluster) NodeDir(n int) string {
	return filepath.Join(c.ClusterDir(), "node"+strconv.Itoa(n))
}

func (c *Cluster) NodeConfDir(n int) string { return filepath.Join(c.NodeDir(n), "conf") }

func (c *Cluster) StoragePort() int { return c.ports.storage }
func (c *Cluster) ThriftPort() int  { return c.ports.thrift }
func (c *Cluster) BinaryPort() int  { return c.ports.binary }
func (c *Cluster) SNIPort() int     { return c.ports.sni }

func (c *Cluster) JMXPorts() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.ports.jmx...)
}

// ProtocolVersion is the newest native protocol the cluster's Cassandra version speaks.
func (c *Cluster) ProtocolVersion() version.ProtocolVersion {
	return version.Protocol(c.cassandra)
}

// ProtocolVersionCapped is ProtocolVersion limited to max.
func (c *Cluster) ProtocolVersionCapped(max version.ProtocolVersion) version.ProtocolVersion {
	return c.ProtocolVersion().Cap(max)
}

// Status is a JSON-friendly snapshot of a cluster.
type Status struct {
	Name          string   `json:"name"`
	State         string   `json:"state"`
	Closed        bool     `json:"closed"`
	KeepLogs      bool     `json:"keep_logs"`
	Cassandra     string   `json:"cassandra_version"`
	DSE           string   `json:"dse_version,omitempty"`
	Scylla        bool     `json:"scylla"`
	Nodes         []int    `json:"nodes"`
	ContactPoints []string `json:"contact_points"`
	BinaryPort    int      `json:"binary_port"`
	StoragePort   int      `json:"storage_port"`
	ThriftPort    int      `json:"thrift_port"`
	JMXPorts      []int    `json:"jmx_ports"`
	Protocol      string   `json:"protocol_version"`
	Dir           string   `json:"dir"`
}

func (c *Cluster) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		Name:          c.name,
		State:         c.state.String(),
		Closed:        c.closed,
		KeepLogs:      c.keepLogs,
		Cassandra:     c.cassandra.String(),
		Scylla:        c.scylla,
		Nodes:         append([]int(nil), c.nodes...),
		ContactPoints: c.ContactPoints(),
		BinaryPort:    c.ports.binary,
		StoragePort:   c.ports.storage,
		ThriftPort:    c.ports.thrift,
		JMXPorts:      append([]int(nil), c.ports.jmx...),
		Protocol:      c.ProtocolVersion().String(),
		Dir:           c.dir,
	}
	if c.dse != nil {
		s.DSE = c.dse.String()
	}
	return s
}
