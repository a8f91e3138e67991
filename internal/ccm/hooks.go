package ccm

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Open clusters are tracked so that CloseAll and the signal handler can release
// clusters whose owner never called Close.
var open = struct {
	sync.Mutex
	clusters map[*Cluster]struct{}
}{clusters: make(map[*Cluster]struct{})}

func register(c *Cluster) func() {
	open.Lock()
	open.clusters[c] = struct{}{}
	open.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			open.Lock()
			delete(open.clusters, c)
			open.Unlock()
		})
	}
}

// OpenClusters returns the clusters built and not yet closed.
func OpenClusters() []*Cluster {
	open.Lock()
	defer open.Unlock()
	clusters := make([]*Cluster, 0, len(open.clusters))
	for c := range open.clusters {
		clusters = append(clusters, c)
	}
	return clusters
}

// CloseAll closes every open cluster. Call it from TestMain after m.Run.
func CloseAll(ctx context.Context) error {
	var errs []error
	for _, c := range OpenClusters() {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var signalOnce sync.Once

// HandleSignals closes every open cluster when the process receives SIGINT or SIGTERM,
// then exits with status 1. Closing is best effort and bounded by timeout.
func HandleSignals(timeout time.Duration) {
	signalOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-ch
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			CloseAll(ctx)
			cancel()
			os.Exit(1)
		}()
	})
}
