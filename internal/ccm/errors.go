package ccm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWatchdogKilled matches an *ExecError whose process outlived the command timeout.
	ErrWatchdogKilled = errors.New("killed by watchdog")

	ErrClosed    = errors.New("cluster is closed")
	ErrNoVersion = errors.New("no cluster version configured")

	// ErrUnknownNode is returned for node numbers the cluster was neither created nor
	// extended with.
	ErrUnknownNode = errors.New("unknown node")
)

// ExecError is returned when a cluster manager command fails to start, exits non-zero
// or is killed by the watchdog. Output holds the full labeled transcript.
type ExecError struct {
	Command string
	// ExitCode is -1 when the process did not exit on its own.
	ExitCode int
	Killed   bool
	Output   string
	Err      error

	tail string
}

func (e *ExecError) Error() string {
	var msg string
	switch {
	case e.Killed:
		msg = fmt.Sprintf("command %s was killed by the watchdog", e.Command)
	case e.ExitCode >= 0:
		msg = fmt.Sprintf("non-zero exit code (%d) returned from executing ccm command: %s", e.ExitCode, e.Command)
	default:
		msg = fmt.Sprintf("command %s failed to execute: %v", e.Command, e.Err)
	}
	if tail := strings.TrimRight(e.tail, "\n"); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

func (e *ExecError) Is(target error) bool {
	return target == ErrWatchdogKilled && e.Killed
}

// StartupError reports a cluster or node that did not come up. Node is 0 when the whole
// cluster was being started. LogErrors holds the output of checklogerror when it could
// be obtained.
type StartupError struct {
	Cluster   string
	Node      int
	LogErrors string
	Err       error
}

func (e *StartupError) Error() string {
	if e.Node > 0 {
		return fmt.Sprintf("could not start node %d in %s: %v", e.Node, e.Cluster, e.Err)
	}
	return fmt.Sprintf("could not start %s: %v", e.Cluster, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
