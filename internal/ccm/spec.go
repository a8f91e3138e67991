package ccm

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/ccmbridge/internal/version"
)

var validate = validator.New()

var ipPrefixRegex = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.$`)

func init() {
	validate.RegisterValidation("ip_prefix", func(fl validator.FieldLevel) bool {
		m := ipPrefixRegex.FindStringSubmatch(fl.Field().String())
		if m == nil {
			return false
		}
		for _, octet := range m[1:] {
			if n, _ := strconv.Atoi(octet); n > 255 {
				return false
			}
		}
		return true
	})
}

// Workload selects the specialized services a DSE node runs.
type Workload string

const (
	WorkloadCassandra Workload = "cassandra"
	WorkloadSolr      Workload = "solr"
	WorkloadHadoop    Workload = "hadoop"
	WorkloadSpark     Workload = "spark"
	WorkloadCFS       Workload = "cfs"
	WorkloadGraph     Workload = "graph"
	WorkloadDSEFS     Workload = "dsefs"
)

func joinWorkloads(w []Workload) string {
	parts := make([]string, len(w))
	for i, v := range w {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

// ClusterSpec is the frozen output of a Builder. Its slices and settings are private
// copies; mutating them does not affect the builder.
type ClusterSpec struct {
	Name          string `validate:"required"`
	IPPrefix      string `validate:"required,ip_prefix"`
	Nodes         []int  `validate:"dive,gte=0"`
	Version       *version.Number
	DSE           bool
	JMXPorts      []int `validate:"dive,gt=0,lte=65535"`
	SNIProxy      bool
	Start         bool
	CreateOptions []string
	JVMArgs       []string
	// CassandraConfig is applied with updateconf, DSEConfig with updatedseconf.
	CassandraConfig *Settings
	DSEConfig       *Settings
	Workloads       map[int][]Workload
}

// TotalNodes is the sum of the per-datacenter node counts.
func (s ClusterSpec) TotalNodes() int {
	total := 0
	for _, n := range s.Nodes {
		total += n
	}
	return total
}

func (s ClusterSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	total := s.TotalNodes()
	for _, node := range s.workloadNodes() {
		if node < 1 || node > total {
			return fmt.Errorf("validation error: workload for node %d but the cluster has %d nodes", node, total)
		}
	}
	return nil
}

// workloadNodes returns the nodes with a workload in ascending order.
func (s ClusterSpec) workloadNodes() []int {
	nodes := make([]int, 0, len(s.Workloads))
	for n := range s.Workloads {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	return nodes
}
