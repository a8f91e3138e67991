package ccm

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	c := &Cluster{name: "ccm_registered"}
	unregister := register(c)
	assert.Contains(t, OpenClusters(), c)

	unregister()
	unregister()
	assert.NotContains(t, OpenClusters(), c)
}

func TestCloseAll(t *testing.T) {
	f := newFakeCCM(t)
	h := newTestHarness(t, f, nil)
	a := build(t, h.Builder().NotStarted())
	b := build(t, h.Builder().NotStarted())
	b.SetKeepLogs(true)

	require.NoError(t, CloseAll(context.Background()))
	assert.Empty(t, OpenClusters())
	assert.NoDirExists(t, a.Dir())
	assert.DirExists(t, b.Dir())
	assert.True(t, a.Status().Closed)
	assert.True(t, b.Status().Closed)
	assert.Len(t, f.find(t, "remove"), 1)
}

// TestHandleSignals re-runs itself in a child process that builds a cluster and then
// receives SIGTERM. The child must remove the cluster and exit with status 1.
func TestHandleSignals(t *testing.T) {
	if os.Getenv("CCM_SIGNAL_CHILD") == "1" {
		signalChild(t)
		return
	}

	f := newFakeCCM(t)
	cmd := exec.Command(os.Args[0], "-test.run=^TestHandleSignals$")
	cmd.Env = append(os.Environ(),
		"CCM_SIGNAL_CHILD=1",
		"CCM_FAKE_DIR="+f.dir,
		"TMPDIR="+t.TempDir(),
	)
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "child output:\n%s", out)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.NotEmpty(t, f.find(t, "create"))
	assert.Equal(t, []string{"stop", "remove"}, f.invocations(t)[len(f.invocations(t))-2:])
}

func signalChild(t *testing.T) {
	f := &fakeCCM{dir: os.Getenv("CCM_FAKE_DIR"), log: os.Getenv("CCM_FAKE_LOG")}
	h := newTestHarness(t, f, nil)
	HandleSignals(10 * time.Second)

	_, err := h.Builder().NotStarted().Build(context.Background())
	require.NoError(t, err)

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGTERM))
	time.Sleep(10 * time.Second)
	t.Fatal("process survived SIGTERM")
}
