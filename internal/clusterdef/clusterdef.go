package clusterdef

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edvin/ccmbridge/internal/ccm"
	"github.com/edvin/ccmbridge/internal/version"
)

var validate = validator.New()

// Load reads and validates a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if err := validate.Struct(def); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if def.Version != "" {
		if _, err := version.Parse(def.Version); err != nil {
			return nil, fmt.Errorf("version: %w", err)
		}
	}
	return &def, nil
}

// Apply configures b from def. SSL and auth need the harness credentials, so they are
// applied through the builder like any other option.
func Apply(def *Definition, b *ccm.Builder) (*ccm.Builder, error) {
	if len(def.Nodes) > 0 {
		b.WithNodes(def.Nodes...)
	}
	if def.IPPrefix != "" {
		b.WithIPPrefix(def.IPPrefix)
	}
	if def.DSE {
		b.WithDSE(true)
	}
	if def.Version != "" {
		v, err := version.Parse(def.Version)
		if err != nil {
			return nil, fmt.Errorf("version: %w", err)
		}
		b.WithVersion(v)
	}
	if def.Auth {
		b.WithAuth()
	} else if def.SSL {
		b.WithSSL()
	}
	if def.SNIProxy {
		b.WithSNIProxy()
	}
	if def.Start != nil && !*def.Start {
		b.NotStarted()
	}
	if len(def.JVMArgs) > 0 {
		b.WithJVMArgs(def.JVMArgs...)
	}
	if len(def.CreateOptions) > 0 {
		b.WithCreateOptions(def.CreateOptions...)
	}
	if len(def.JMXPorts) > 0 {
		b.WithJMXPorts(def.JMXPorts...)
	}
	if def.StoragePort > 0 {
		b.WithStoragePort(def.StoragePort)
	}
	if def.ThriftPort > 0 {
		b.WithThriftPort(def.ThriftPort)
	}
	if def.BinaryPort > 0 {
		b.WithBinaryPort(def.BinaryPort)
	}
	// Sorted so that the resulting updateconf line is stable.
	for _, k := range slices.Sorted(maps.Keys(def.Config)) {
		b.WithCassandraConfiguration(k, def.Config[k])
	}
	for _, k := range slices.Sorted(maps.Keys(def.DSEConfig)) {
		b.WithDSEConfiguration(k, def.DSEConfig[k])
	}
	for node, names := range def.Workloads {
		workloads := make([]ccm.Workload, len(names))
		for i, name := range names {
			workloads[i] = ccm.Workload(name)
		}
		b.WithWorkload(node, workloads...)
	}
	return b, nil
}
