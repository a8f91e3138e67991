package ccm

import (
	"context"
	"fmt"
	"slices"
)

func (c *Cluster) checkNode(n int) error {
	if c.closed {
		return ErrClosed
	}
	return c.validNode(n)
}

// validNode accepts the nodes created with the cluster and those added since.
func (c *Cluster) validNode(n int) error {
	if n < 1 {
		return fmt.Errorf("invalid node %d, nodes start at 1", n)
	}
	if n > c.totalNodes() && !slices.Contains(c.added, n) {
		return fmt.Errorf("%w: node %d in %s", ErrUnknownNode, n, c)
	}
	return nil
}

// nodeCmd runs "node<n> <format>" under the cluster lock.
func (c *Cluster) nodeCmd(ctx context.Context, n int, action, format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkNode(n); err != nil {
		return err
	}
	c.logger.Debug().Int("node", n).Str("addr", c.AddressOfNode(n)).Msg(action)
	_, err := c.run(ctx, "node%d "+format, append([]any{n}, args...)...)
	return err
}

// StartNode starts node n and waits for its binary port.
func (c *Cluster) StartNode(ctx context.Context, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkNode(n); err != nil {
		return err
	}
	addr := c.AddressOfNode(n)
	c.logger.Debug().Int("node", n).Str("addr", addr).Msg("starting node")

	_, err := c.run(ctx, "node%d start%s%s", n, c.jvmArgs, c.startWaitArgs())
	if err == nil {
		c.logger.Debug().Str("addr", addr).Msg("waiting for binary protocol to show up")
		err = waitForPort(ctx, addr, true, c.portWait)
	}
	if err != nil {
		return c.startupFailure(ctx, n, err)
	}
	return nil
}

func (c *Cluster) StopNode(ctx context.Context, n int) error {
	return c.nodeCmd(ctx, n, "stopping node", "stop")
}

func (c *Cluster) ForceStopNode(ctx context.Context, n int) error {
	return c.nodeCmd(ctx, n, "force stopping node", "stop --not-gently")
}

func (c *Cluster) PauseNode(ctx context.Context, n int) error {
	return c.nodeCmd(ctx, n, "pausing node", "pause")
}

func (c *Cluster) ResumeNode(ctx context.Context, n int) error {
	return c.nodeCmd(ctx, n, "resuming node", "resume")
}

func (c *Cluster) RemoveNode(ctx context.Context, n int) error {
	return c.nodeCmd(ctx, n, "removing node", "remove")
}

// DecommissionNode forces the decommission on versions that refuse to shrink below
// the replication factor otherwise (CASSANDRA-12510).
func (c *Cluster) DecommissionNode(ctx context.Context, n int) error {
	cmd := "decommission"
	if c.caps.ForceDecommission {
		cmd += " --force"
	}
	return c.nodeCmd(ctx, n, "decommissioning node", cmd)
}

// AddNode adds node n to the first datacenter.
func (c *Cluster) AddNode(ctx context.Context, n int) error {
	return c.AddNodeToDC(ctx, 1, n)
}

// AddNodeToDC adds node n to datacenter dc. The node listens on the cluster's
// storage, thrift and binary ports at its own address and gets fresh JMX and remote
// debug ports.
func (c *Cluster) AddNodeToDC(ctx context.Context, dc, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if n < 1 {
		return fmt.Errorf("invalid node %d, nodes start at 1", n)
	}
	if dc < 1 {
		return fmt.Errorf("invalid datacenter %d, datacenters start at 1", dc)
	}

	ip := c.ipOfNode(n)
	jmxPort, err := FreePort()
	if err != nil {
		return err
	}
	debugPort, err := FreePort()
	if err != nil {
		return err
	}
	c.logger.Debug().Int("node", n).Int("dc", dc).Str("addr", c.AddressOfNode(n)).Msg("adding node")

	cmd := fmt.Sprintf("add node%d -d dc%d -i %s -t %s:%d -l %s:%d --binary-itf %s:%d -j %d -r %s:%d -s -b",
		n, dc, ip, ip, c.ports.thrift, ip, c.ports.storage, ip, c.ports.binary, jmxPort, ip, debugPort)
	if c.dse != nil {
		cmd += " --dse"
	}
	if c.scylla {
		cmd += " --scylla"
	}
	if _, err := c.run(ctx, "%s", cmd); err != nil {
		return err
	}

	for len(c.ports.jmx) < n {
		c.ports.jmx = append(c.ports.jmx, 0)
	}
	c.ports.jmx[n-1] = jmxPort
	if n > c.totalNodes() && !slices.Contains(c.added, n) {
		c.added = append(c.added, n)
	}
	return nil
}

// UpdateConfig sets cassandra.yaml entries on every node. Keys are applied in
// alphabetical order.
func (c *Cluster) UpdateConfig(ctx context.Context, conf map[string]any) error {
	return c.lockedUpdate(ctx, "updateconf", SettingsFromMap(conf))
}

// UpdateDSEConfig sets dse.yaml entries on every node.
func (c *Cluster) UpdateDSEConfig(ctx context.Context, conf map[string]any) error {
	return c.lockedUpdate(ctx, "updatedseconf", SettingsFromMap(conf))
}

// UpdateNodeConfig sets cassandra.yaml entries on node n.
func (c *Cluster) UpdateNodeConfig(ctx context.Context, n int, conf map[string]any) error {
	return c.nodeCmd(ctx, n, "updating node config", "updateconf %s", SettingsFromMap(conf).Args())
}

// UpdateDSENodeConfig sets dse.yaml entries on node n.
func (c *Cluster) UpdateDSENodeConfig(ctx context.Context, n int, conf map[string]any) error {
	return c.nodeCmd(ctx, n, "updating node dse config", "updatedseconf %s", SettingsFromMap(conf).Args())
}

// SetWorkload replaces the workloads of node n.
func (c *Cluster) SetWorkload(ctx context.Context, n int, workloads ...Workload) error {
	return c.nodeCmd(ctx, n, "setting workload", "setworkload %s", joinWorkloads(workloads))
}

func (c *Cluster) lockedUpdate(ctx context.Context, sub string, conf *Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.updateConfig(ctx, sub, conf)
}

func (c *Cluster) updateConfig(ctx context.Context, sub string, conf *Settings) error {
	_, err := c.run(ctx, "%s %s", sub, conf.Args())
	return err
}

// WaitForUp blocks until node n accepts connections on its binary port, or the port
// wait timeout passes.
func (c *Cluster) WaitForUp(ctx context.Context, n int) error {
	if err := c.lockedValidNode(n); err != nil {
		return err
	}
	return waitForPort(ctx, c.AddressOfNode(n), true, c.portWait)
}

// WaitForDown blocks until node n refuses connections on its binary port.
func (c *Cluster) WaitForDown(ctx context.Context, n int) error {
	if err := c.lockedValidNode(n); err != nil {
		return err
	}
	return waitForPort(ctx, c.AddressOfNode(n), false, c.portWait)
}

func (c *Cluster) lockedValidNode(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validNode(n)
}
