package ccm

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// RandomPort is replaced by a free local port wherever it appears in configuration
// values, create options and JVM arguments.
const RandomPort = "__RANDOM_PORT__"

var randomPortPattern = regexp.MustCompile(regexp.QuoteMeta(RandomPort))

// FreePort asks the kernel for an unused TCP port on the loopback interface.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// RandomizePorts replaces every RandomPort in s with its own free port.
func RandomizePorts(s string) (string, error) {
	var firstErr error
	out := randomPortPattern.ReplaceAllStringFunc(s, func(string) string {
		if firstErr != nil {
			return ""
		}
		port, err := FreePort()
		if err != nil {
			firstErr = err
			return ""
		}
		return strconv.Itoa(port)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func randomizeAll(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		r, err := RandomizePorts(v)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
