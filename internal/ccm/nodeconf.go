package ccm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// patchNodeConf rewrites node.conf of every node to the cluster's ports. ccm create -n
// writes the default ports regardless of the configured ones.
func (c *Cluster) patchNodeConf() error {
	replacer := strings.NewReplacer(
		"9042", strconv.Itoa(c.ports.binary),
		"9160", strconv.Itoa(c.ports.thrift),
		"7000", strconv.Itoa(c.ports.storage),
	)
	for n := 1; n <= c.totalNodes(); n++ {
		debugPort, err := FreePort()
		if err != nil {
			return err
		}
		jmxPort := c.ports.jmx[n-1]
		c.logger.Trace().Int("node", n).Int("jmx_port", jmxPort).Int("debug_port", debugPort).Msg("patching node.conf")
		if err := rewriteNodeConf(filepath.Join(c.NodeDir(n), "node.conf"), replacer, jmxPort, c.ipOfNode(n), debugPort); err != nil {
			return fmt.Errorf("patch node%d: %w", n, err)
		}
	}
	return nil
}

func rewriteNodeConf(path string, replacer *strings.Replacer, jmxPort int, ip string, debugPort int) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := path + ".tmp"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(dst)
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := replacer.Replace(sc.Text())
		switch {
		case strings.HasPrefix(line, "jmx_port"):
			line = fmt.Sprintf("jmx_port: '%d'", jmxPort)
		case strings.HasPrefix(line, "remote_debug_port"):
			line = fmt.Sprintf("remote_debug_port: %s:%d", ip, debugPort)
		}
		fmt.Fprintln(w, line)
	}
	if err := sc.Err(); err != nil {
		dst.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	src.Close()
	return os.Rename(tmpPath, path)
}
