package ccm

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/edvin/ccmbridge/internal/platform"
	"github.com/edvin/ccmbridge/internal/version"
)

// Builder accumulates the settings of a cluster. Methods mutate and return the builder;
// Spec freezes a copy and Build materializes the cluster.
type Builder struct {
	h *Harness

	ipPrefix        string
	nodes           []int
	jmxPorts        []int
	start           bool
	dse             bool
	sniProxy        bool
	version         *version.Number
	createOptions   []string
	jvmArgs         []string
	cassandraConfig *Settings
	dseConfig       *Settings
	workloads       map[int][]Workload
}

// Builder returns a builder for a single node cluster on the default version, started
// on Build.
func (h *Harness) Builder() *Builder {
	b := &Builder{
		h:               h,
		ipPrefix:        h.cfg.IPPrefix,
		nodes:           []int{1},
		start:           true,
		dse:             h.cfg.DSE,
		cassandraConfig: NewSettings(),
		dseConfig:       NewSettings(),
		workloads:       make(map[int][]Workload),
	}
	b.cassandraConfig.Set("start_rpc", false)
	b.cassandraConfig.Set("storage_port", RandomPort)
	b.cassandraConfig.Set("rpc_port", RandomPort)
	b.cassandraConfig.Set("native_transport_port", RandomPort)
	return b
}

// WithIPPrefix sets the address prefix of the nodes, e.g. "127.1.1.".
func (b *Builder) WithIPPrefix(prefix string) *Builder {
	b.ipPrefix = prefix
	return b
}

// WithNodes sets the node count of each datacenter.
func (b *Builder) WithNodes(nodes ...int) *Builder {
	b.nodes = slices.Clone(nodes)
	return b
}

func (b *Builder) WithoutNodes() *Builder {
	return b.WithNodes()
}

func (b *Builder) WithSNIProxy() *Builder {
	b.sniProxy = true
	return b
}

// WithSSL enables client encryption. Scylla takes PEM files, the other flavors a JKS
// keystore.
func (b *Builder) WithSSL() *Builder {
	creds := b.h.Credentials()
	b.cassandraConfig.Set("client_encryption_options.enabled", "true")
	if b.h.IsScylla() {
		b.cassandraConfig.Set("client_encryption_options.certificate", creds.ServerCertChain)
		b.cassandraConfig.Set("client_encryption_options.keyfile", creds.ServerPrivateKey)
	} else {
		b.cassandraConfig.Set("client_encryption_options.optional", "false")
		b.cassandraConfig.Set("client_encryption_options.keystore", creds.ServerKeystore)
		b.cassandraConfig.Set("client_encryption_options.keystore_password", StorePassword)
	}
	return b
}

// WithAuth requires client certificates. It implies WithSSL.
func (b *Builder) WithAuth() *Builder {
	b.WithSSL()
	creds := b.h.Credentials()
	b.cassandraConfig.Set("client_encryption_options.require_client_auth", "true")
	if b.h.IsScylla() {
		b.cassandraConfig.Set("client_encryption_options.truststore", creds.ServerTruststorePEM)
	} else {
		b.cassandraConfig.Set("client_encryption_options.truststore", creds.ServerTruststore)
		b.cassandraConfig.Set("client_encryption_options.truststore_password", StorePassword)
	}
	return b
}

// NotStarted leaves the cluster created but stopped after Build.
func (b *Builder) NotStarted() *Builder {
	b.start = false
	return b
}

// WithVersion sets the Cassandra version, or the DSE version for DSE clusters.
func (b *Builder) WithVersion(v version.Number) *Builder {
	b.version = &v
	return b
}

func (b *Builder) WithDSE(dse bool) *Builder {
	b.dse = dse
	return b
}

// WithCreateOptions adds free-form arguments to ccm create. Without any and without an
// explicit version the configured install arguments are used.
func (b *Builder) WithCreateOptions(options ...string) *Builder {
	b.createOptions = appendUnique(b.createOptions, options...)
	return b
}

// WithCassandraConfiguration sets an entry of cassandra.yaml.
func (b *Builder) WithCassandraConfiguration(key string, value any) *Builder {
	b.cassandraConfig.Set(key, value)
	return b
}

// WithDSEConfiguration sets an entry of dse.yaml.
func (b *Builder) WithDSEConfiguration(key string, value any) *Builder {
	b.dseConfig.Set(key, value)
	return b
}

// WithJVMArgs adds JVM arguments used when starting nodes, one -Dname=value each.
func (b *Builder) WithJVMArgs(args ...string) *Builder {
	b.jvmArgs = appendUnique(b.jvmArgs, args...)
	return b
}

func (b *Builder) WithStoragePort(port int) *Builder {
	b.cassandraConfig.Set("storage_port", port)
	return b
}

func (b *Builder) WithThriftPort(port int) *Builder {
	b.cassandraConfig.Set("rpc_port", port)
	return b
}

func (b *Builder) WithBinaryPort(port int) *Builder {
	b.cassandraConfig.Set("native_transport_port", port)
	return b
}

// WithJMXPorts sets the JMX port of the first len(ports) nodes. The others get free
// ports at build time.
func (b *Builder) WithJMXPorts(ports ...int) *Builder {
	b.jmxPorts = slices.Clone(ports)
	return b
}

// WithWorkload sets the workloads of a node (starting with 1).
func (b *Builder) WithWorkload(node int, workloads ...Workload) *Builder {
	b.workloads[node] = slices.Clone(workloads)
	return b
}

// Weight is the total number of nodes, used to schedule test groups by cluster size.
func (b *Builder) Weight() int {
	total := 0
	for _, n := range b.nodes {
		total += n
	}
	return total
}

// Spec freezes the builder into a fresh ClusterSpec with a newly generated name.
func (b *Builder) Spec() ClusterSpec {
	workloads := make(map[int][]Workload, len(b.workloads))
	for n, w := range b.workloads {
		workloads[n] = slices.Clone(w)
	}
	var v *version.Number
	if b.version != nil {
		copied := *b.version
		v = &copied
	}
	return ClusterSpec{
		Name:            platform.NewClusterName(),
		IPPrefix:        b.ipPrefix,
		Nodes:           slices.Clone(b.nodes),
		Version:         v,
		DSE:             b.dse,
		JMXPorts:        slices.Clone(b.jmxPorts),
		SNIProxy:        b.sniProxy,
		Start:           b.start,
		CreateOptions:   slices.Clone(b.createOptions),
		JVMArgs:         slices.Clone(b.jvmArgs),
		CassandraConfig: b.cassandraConfig.Clone(),
		DSEConfig:       b.dseConfig.Clone(),
		Workloads:       workloads,
	}
}

// Equal reports whether both builders would create the same cluster. The start flag
// is ignored; options and JVM arguments compare as sets of individual arguments.
func (b *Builder) Equal(o *Builder) bool {
	if b == o {
		return true
	}
	if o == nil {
		return false
	}
	return b.ipPrefix == o.ipPrefix &&
		b.dse == o.dse &&
		b.sniProxy == o.sniProxy &&
		slices.Equal(b.nodes, o.nodes) &&
		slices.Equal(b.jmxPorts, o.jmxPorts) &&
		versionText(b.version) == versionText(o.version) &&
		slices.Equal(sortedCopy(b.createOptions), sortedCopy(o.createOptions)) &&
		slices.Equal(sortedCopy(b.jvmArgs), sortedCopy(o.jvmArgs)) &&
		b.cassandraConfig.Equal(o.cassandraConfig) &&
		b.dseConfig.Equal(o.dseConfig) &&
		maps.EqualFunc(b.workloads, o.workloads, func(x, y []Workload) bool {
			return slices.Equal(x, y)
		})
}

// Hash is consistent with Equal.
func (b *Builder) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(b.fingerprint()))
	return h.Sum64()
}

// fingerprint quotes every string so that element boundaries survive.
func (b *Builder) fingerprint() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ip=%q|dse=%t|sni=%t|nodes=%v|jmx=%v|", b.ipPrefix, b.dse, b.sniProxy, b.nodes, b.jmxPorts)
	fmt.Fprintf(&sb, "version=%q|", versionText(b.version))
	fmt.Fprintf(&sb, "create=%q|", sortedCopy(b.createOptions))
	fmt.Fprintf(&sb, "jvm=%q|", sortedCopy(b.jvmArgs))
	fmt.Fprintf(&sb, "conf=%s|dseconf=%s|", b.cassandraConfig.fingerprint(), b.dseConfig.fingerprint())
	for _, n := range slices.Sorted(maps.Keys(b.workloads)) {
		fmt.Fprintf(&sb, "w%d=%q;", n, joinWorkloads(b.workloads[n]))
	}
	return sb.String()
}

func versionText(v *version.Number) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func sortedCopy(s []string) []string {
	return slices.Sorted(slices.Values(s))
}

// Build creates the cluster on disk, applies its configuration and starts it unless
// NotStarted was called. A failure after the working directory exists closes the
// cluster before the error is returned, even when ctx is already done.
func (b *Builder) Build(ctx context.Context) (*Cluster, error) {
	spec := b.Spec()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	h := b.h

	cassandra, dse, err := h.resolveVersions(spec)
	if err != nil {
		return nil, err
	}
	caps := version.CapabilitiesOf(cassandra, dse)

	conf, err := spec.CassandraConfig.Randomized()
	if err != nil {
		return nil, err
	}
	storagePort, err := conf.Port("storage_port")
	if err != nil {
		return nil, err
	}
	thriftPort, err := conf.Port("rpc_port")
	if err != nil {
		return nil, err
	}
	binaryPort, err := conf.Port("native_transport_port")
	if err != nil {
		return nil, err
	}
	sniPort, err := FreePort()
	if err != nil {
		return nil, err
	}
	jmxPorts := make([]int, spec.TotalNodes())
	for i := range jmxPorts {
		if i < len(spec.JMXPorts) {
			jmxPorts[i] = spec.JMXPorts[i]
			continue
		}
		if jmxPorts[i], err = FreePort(); err != nil {
			return nil, err
		}
	}

	if !caps.SupportsThrift {
		conf.Delete("start_rpc")
		conf.Delete("rpc_port")
		conf.Delete("thrift_prepared_statements_cache_size_mb")
	}
	if !spec.DSE {
		if caps.MaterializedViewsDisabledByDefault {
			conf.Set("enable_materialized_views", true)
		}
		if caps.SASIConfigRequired {
			conf.Set("enable_sasi_indexes", true)
		}
	}
	if h.IsScylla() {
		conf.Set("prometheus_port", RandomPort)
		conf.Set("api_port", RandomPort)
		conf.Set("native_shard_aware_transport_port", RandomPort)
		if conf, err = conf.Randomized(); err != nil {
			return nil, err
		}
	}

	jvmArgs, err := h.joinJVMArgs(spec.JVMArgs)
	if err != nil {
		return nil, err
	}

	c, err := newCluster(h, spec, clusterPorts{
		storage: storagePort,
		thrift:  thriftPort,
		binary:  binaryPort,
		sni:     sniPort,
		jmx:     jmxPorts,
	}, cassandra, dse, caps, jvmArgs)
	if err != nil {
		return nil, err
	}

	if err := b.materialize(ctx, c, spec, conf); err != nil {
		cctx, cancel := c.cleanupContext(ctx)
		defer cancel()
		if closeErr := c.Close(cctx); closeErr != nil {
			return nil, errors.Join(err, closeErr)
		}
		return nil, err
	}
	return c, nil
}

func (b *Builder) materialize(ctx context.Context, c *Cluster, spec ClusterSpec, conf *Settings) error {
	createCmd, err := b.h.createCommand(spec, c.cassandra, c.dse)
	if err != nil {
		return err
	}
	if _, err := c.run(ctx, "%s", createCmd); err != nil {
		return err
	}
	if err := c.patchNodeConf(); err != nil {
		return err
	}
	if conf.Len() > 0 {
		if err := c.updateConfig(ctx, "updateconf", conf); err != nil {
			return err
		}
	}
	if c.dse != nil {
		dseConf := spec.DSEConfig.Clone()
		if c.caps.RandomizeDSEPorts {
			dseConf.Set("lease_netty_server_port", RandomPort)
			dseConf.Set("internode_messaging_options.port", RandomPort)
		}
		if dseConf, err = dseConf.Randomized(); err != nil {
			return err
		}
		if dseConf.Len() > 0 {
			if err := c.updateConfig(ctx, "updatedseconf", dseConf); err != nil {
				return err
			}
		}
	}
	for _, n := range spec.workloadNodes() {
		if err := c.SetWorkload(ctx, n, spec.Workloads[n]...); err != nil {
			return err
		}
	}
	if spec.Start {
		return c.Start(ctx)
	}
	return nil
}

// resolveVersions picks the Cassandra and, for DSE clusters, DSE version of spec. An
// explicit version wins over the configured defaults.
func (h *Harness) resolveVersions(spec ClusterSpec) (version.Number, *version.Number, error) {
	switch {
	case spec.Version == nil:
		if h.cassandra == nil {
			return version.Number{}, nil, ErrNoVersion
		}
		return *h.cassandra, h.dse, nil
	case spec.DSE:
		dse := *spec.Version
		return version.CassandraForDSE(dse), &dse, nil
	default:
		return *spec.Version, nil, nil
	}
}

func (h *Harness) createCommand(spec ClusterSpec, cassandra version.Number, dse *version.Number) (string, error) {
	parts := []string{"create", spec.Name, "-i", spec.IPPrefix}
	if len(spec.Nodes) > 0 {
		counts := make([]string, len(spec.Nodes))
		for i, n := range spec.Nodes {
			counts[i] = strconv.Itoa(n)
		}
		parts = append(parts, "-n", strings.Join(counts, ":"))
	}

	options := slices.Clone(spec.CreateOptions)
	switch {
	case spec.Version == nil:
		options = appendUnique(options, h.installArgs...)
	case dse != nil:
		options = appendUnique(options, "--dse", "-v", dse.String())
	default:
		options = appendUnique(options, "-v", cassandra.String())
	}
	options, err := randomizeAll(options)
	if err != nil {
		return "", err
	}
	return strings.Join(append(parts, options...), " "), nil
}

// joinJVMArgs renders the --jvm_arg flags for start commands. Every flag is passed to
// the cluster manager as its own argument, unquoted on every platform.
func (h *Harness) joinJVMArgs(args []string) (string, error) {
	var sb strings.Builder
	for _, arg := range args {
		r, err := RandomizePorts(arg)
		if err != nil {
			return "", err
		}
		sb.WriteString(" --jvm_arg=" + r)
	}
	return sb.String(), nil
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
