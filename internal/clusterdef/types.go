package clusterdef

// Definition describes a cluster in YAML. Zero values leave the builder defaults alone.
type Definition struct {
	Nodes         []int            `yaml:"nodes" validate:"dive,gte=0"`
	Version       string           `yaml:"version"`
	DSE           bool             `yaml:"dse"`
	IPPrefix      string           `yaml:"ip_prefix"`
	SSL           bool             `yaml:"ssl"`
	Auth          bool             `yaml:"auth"`
	SNIProxy      bool             `yaml:"sni_proxy"`
	Start         *bool            `yaml:"start"`
	JVMArgs       []string         `yaml:"jvm_args"`
	CreateOptions []string         `yaml:"create_options"`
	JMXPorts      []int            `yaml:"jmx_ports" validate:"dive,gt=0,lte=65535"`
	StoragePort   int              `yaml:"storage_port" validate:"gte=0,lte=65535"`
	ThriftPort    int              `yaml:"thrift_port" validate:"gte=0,lte=65535"`
	BinaryPort    int              `yaml:"binary_port" validate:"gte=0,lte=65535"`
	Config        map[string]any   `yaml:"config"`
	DSEConfig     map[string]any   `yaml:"dse_config"`
	Workloads     map[int][]string `yaml:"workloads" validate:"dive,keys,gt=0,endkeys"`
}
