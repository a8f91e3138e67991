package ccm

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/ccmbridge/internal/config"
)

// fakeScript stands in for ccm. It appends its arguments to $CCM_FAKE_LOG, lays out
// node directories on create, fails the subcommand named by $CCM_FAKE_FAIL and hangs
// on the one named by $CCM_FAKE_HANG.
const fakeScript = `#!/bin/sh
printf '%s\n' "$*" >> "$CCM_FAKE_LOG"
dir=""
for a in "$@"; do
  case "$a" in --config-dir=*) dir="${a#--config-dir=}" ;; esac
done
sub="$1"
case "$1" in node*) sub="node $2" ;; esac
if [ -n "$CCM_FAKE_FAIL" ] && [ "$sub" = "$CCM_FAKE_FAIL" ]; then
  echo "boom on $sub" >&2
  exit 3
fi
if [ -n "$CCM_FAKE_HANG" ] && [ "$sub" = "$CCM_FAKE_HANG" ]; then
  exec sleep 30
fi
if [ "$1" = "create" ]; then
  name="$2"
  nodes=""
  prev=""
  for a in "$@"; do
    if [ "$prev" = "-n" ]; then nodes="$a"; fi
    prev="$a"
  done
  total=0
  for n in $(echo "$nodes" | tr ':' ' '); do total=$((total + n)); done
  i=1
  while [ "$i" -le "$total" ]; do
    mkdir -p "$dir/$name/node$i/conf" "$dir/$name/node$i/logs"
    {
      echo "name: node$i"
      echo "binary_interfaces: 127.0.1.$i:9042"
      echo "thrift_interface: 127.0.1.$i:9160"
      echo "storage_interface: 127.0.1.$i:7000"
      echo "jmx_port: '7100'"
      echo "remote_debug_port: 127.0.0.1:2000"
    } > "$dir/$name/node$i/node.conf"
    i=$((i + 1))
  done
fi
if [ "$1" = "checklogerror" ]; then
  echo "ERROR [main] node1 could not bind"
fi
echo "ok $sub"
`

type fakeCCM struct {
	dir string
	log string
}

func newFakeCCM(t *testing.T) *fakeCCM {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ccm is a POSIX shell script")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ccm"), []byte(fakeScript), 0o755))
	f := &fakeCCM{dir: dir, log: filepath.Join(dir, "invocations.log")}
	t.Setenv("CCM_FAKE_LOG", f.log)
	t.Setenv("CCM_FAKE_FAIL", "")
	t.Setenv("CCM_FAKE_HANG", "")
	return f
}

// invocations returns one entry per ccm call with the --config-dir flag dropped.
func (f *fakeCCM) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.log)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var calls []string
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if i := strings.Index(line, " --config-dir="); i >= 0 {
			line = line[:i]
		}
		calls = append(calls, line)
	}
	return calls
}

// find returns the calls starting with prefix.
func (f *fakeCCM) find(t *testing.T, prefix string) []string {
	t.Helper()
	var out []string
	for _, call := range f.invocations(t) {
		if strings.HasPrefix(call, prefix) {
			out = append(out, call)
		}
	}
	return out
}

func testConfig(f *fakeCCM) *config.Config {
	return &config.Config{
		CassandraVersion: "3.11.4",
		CCMPath:          f.dir,
		OS:               "linux",
		IPPrefix:         "127.0.1.",
		CommandTimeout:   30 * time.Second,
		PortWaitTimeout:  300 * time.Millisecond,
		LogLevel:         "debug",
	}
}

func newTestHarness(t *testing.T, f *fakeCCM, mutate func(*config.Config), opts ...Option) *Harness {
	t.Helper()
	cfg := testConfig(f)
	if mutate != nil {
		mutate(cfg)
	}
	h, err := NewHarness(cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func build(t *testing.T, b *Builder) *Cluster {
	t.Helper()
	c, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close(context.Background())
		os.RemoveAll(c.Dir())
	})
	return c
}

// listen opens a loopback listener standing in for a node's native protocol port.
func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}
