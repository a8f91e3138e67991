package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtocol_Thresholds(t *testing.T) {
	tests := []struct {
		version  string
		expected ProtocolVersion
	}{
		{"1.2", V1},
		{"1.9", V1},
		{"2.0", V2},
		{"2.0.17", V2},
		{"2.1", V3},
		{"2.2", V4},
		{"3.0", V4},
		{"3.11.4", V4},
		{"4.0-beta1", V4},
		{"4.0", V5},
		{"4.1", V5},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.expected, Protocol(MustParse(tt.version)))
		})
	}
}

func TestProtocolVersion_Cap(t *testing.T) {
	all := []ProtocolVersion{V1, V2, V3, V4, V5}
	for _, p := range all {
		for _, max := range all {
			got := p.Cap(max)
			assert.LessOrEqual(t, got, max)
			if p <= max {
				assert.Equal(t, p, got)
			}
		}
	}
}

func TestProtocolVersion_String(t *testing.T) {
	assert.Equal(t, "V4", V4.String())
	assert.Equal(t, "unknown", ProtocolVersion(9).String())
}

func TestCapabilitiesOf_Cassandra(t *testing.T) {
	c := CapabilitiesOf(MustParse("3.11"), nil)
	assert.True(t, c.SupportsThrift)
	assert.False(t, c.MaterializedViewsDisabledByDefault)
	assert.False(t, c.SASIConfigRequired)
	assert.False(t, c.ForceDecommission)
	assert.False(t, c.RandomizeDSEPorts)
	assert.Equal(t, V4, c.Protocol)

	c = CapabilitiesOf(MustParse("3.12"), nil)
	assert.True(t, c.ForceDecommission)

	c = CapabilitiesOf(MustParse("4.0-rc2"), nil)
	assert.False(t, c.SupportsThrift, "pre-releases of 4.0 already dropped thrift")
	assert.True(t, c.MaterializedViewsDisabledByDefault)
	assert.True(t, c.SASIConfigRequired)
}

func TestCapabilitiesOf_WaitOtherNotice(t *testing.T) {
	assert.True(t, CapabilitiesOf(MustParse("1.2.19"), nil).WaitOtherNotice)
	assert.False(t, CapabilitiesOf(MustParse("2.0"), nil).WaitOtherNotice)
}

func TestCapabilitiesOf_QuietWindows(t *testing.T) {
	assert.False(t, CapabilitiesOf(MustParse("2.2.3"), nil).QuietWindows)
	assert.True(t, CapabilitiesOf(MustParse("2.2.4"), nil).QuietWindows)
}

func TestCapabilitiesOf_DSE(t *testing.T) {
	dse := MustParse("5.1.0")
	c := CapabilitiesOf(CassandraForDSE(dse), &dse)
	assert.True(t, c.SupportsThrift)
	assert.True(t, c.ForceDecommission)
	assert.True(t, c.RandomizeDSEPorts)

	dse = MustParse("5.0.4")
	c = CapabilitiesOf(CassandraForDSE(dse), &dse)
	assert.False(t, c.ForceDecommission)

	dse = MustParse("4.8")
	c = CapabilitiesOf(CassandraForDSE(dse), &dse)
	assert.False(t, c.RandomizeDSEPorts)

	dse = MustParse("6.0")
	c = CapabilitiesOf(CassandraForDSE(dse), &dse)
	assert.False(t, c.SupportsThrift)
}
