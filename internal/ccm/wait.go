package ccm

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	pollBase    = 50 * time.Millisecond
	pollCap     = 2 * time.Second
	dialTimeout = time.Second
)

// waitForPort polls addr until it accepts connections (up) or refuses them (!up),
// backing off exponentially up to pollCap between attempts.
func waitForPort(ctx context.Context, addr string, up bool, timeout time.Duration) error {
	want := "up"
	if !up {
		want = "down"
	}

	err := retry.Do(ctx, pollBackoff(timeout), func(ctx context.Context) error {
		if portOpen(ctx, addr) == up {
			return nil
		}
		return retry.RetryableError(fmt.Errorf("port %s is not %s", addr, want))
	})
	if err != nil {
		return fmt.Errorf("waiting for %s to be %s after %s: %w", addr, want, timeout, err)
	}
	return nil
}

func pollBackoff(timeout time.Duration) retry.Backoff {
	b := retry.NewExponential(pollBase)
	b = retry.WithCappedDuration(pollCap, b)
	return retry.WithMaxDuration(timeout, b)
}

func portOpen(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
