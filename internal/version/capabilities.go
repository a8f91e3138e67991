package version

import "fmt"

// ProtocolVersion is a CQL native protocol version.
type ProtocolVersion int

const (
	V1 ProtocolVersion = iota + 1
	V2
	V3
	V4
	V5
)

func (p ProtocolVersion) String() string {
	switch p {
	case V1, V2, V3, V4, V5:
		return fmt.Sprintf("V%d", int(p))
	default:
		return "unknown"
	}
}

// Cap returns p, or max when p is newer than max.
func (p ProtocolVersion) Cap(max ProtocolVersion) ProtocolVersion {
	if p > max {
		return max
	}
	return p
}

var (
	v2_2_4 = MustParse("2.2.4")
	v2_0   = MustParse("2.0")
	v2_1   = MustParse("2.1")
	v2_2   = MustParse("2.2")
	v3_12  = MustParse("3.12")
	v4_0   = MustParse("4.0")
	v5_1_0 = MustParse("5.1.0")
	v6_0   = MustParse("6.0")
)

// Protocol returns the newest native protocol a Cassandra release speaks.
func Protocol(cassandra Number) ProtocolVersion {
	switch {
	case cassandra.Less(v2_0):
		return V1
	case cassandra.Less(v2_1):
		return V2
	case cassandra.Less(v2_2):
		return V3
	case cassandra.Less(v4_0):
		return V4
	default:
		return V5
	}
}

// Capabilities lists the version-dependent behavior of a cluster. Every threshold the
// harness branches on lives here.
type Capabilities struct {
	// SupportsThrift is false once the Thrift interface was removed (C* 4.0, DSE 6.0).
	SupportsThrift bool
	// MaterializedViewsDisabledByDefault requires enable_materialized_views in cassandra.yaml.
	MaterializedViewsDisabledByDefault bool
	// SASIConfigRequired requires enable_sasi_indexes in cassandra.yaml.
	SASIConfigRequired bool
	// ForceDecommission appends --force to decommission (CASSANDRA-12510).
	ForceDecommission bool
	// WaitOtherNotice makes start wait for gossip; 1.2 opens the binary port before joining.
	WaitOtherNotice bool
	// QuietWindows is understood by the cluster manager's Windows launcher.
	QuietWindows bool
	// RandomizeDSEPorts gives DSE 5+ services their own free ports.
	RandomizeDSEPorts bool
	Protocol          ProtocolVersion
}

// CapabilitiesOf resolves the capabilities for a Cassandra version and, for DSE
// clusters, the DSE version (nil otherwise).
func CapabilitiesOf(cassandra Number, dse *Number) Capabilities {
	stable := cassandra.NextStable()
	c := Capabilities{
		MaterializedViewsDisabledByDefault: stable.AtLeast(v4_0),
		SASIConfigRequired:                 stable.AtLeast(v4_0),
		ForceDecommission:                  cassandra.AtLeast(v3_12),
		WaitOtherNotice:                    cassandra.Major() == 1,
		QuietWindows:                       cassandra.AtLeast(v2_2_4),
		Protocol:                           Protocol(cassandra),
	}
	if dse == nil {
		c.SupportsThrift = stable.Less(v4_0)
		return c
	}
	c.SupportsThrift = dse.NextStable().Less(v6_0)
	c.ForceDecommission = c.ForceDecommission || dse.AtLeast(v5_1_0)
	c.RandomizeDSEPorts = dse.Major() >= 5
	return c
}
