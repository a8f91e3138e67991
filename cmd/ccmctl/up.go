package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/ccmbridge/internal/archive"
	"github.com/edvin/ccmbridge/internal/ccm"
	"github.com/edvin/ccmbridge/internal/clusterdef"
	"github.com/edvin/ccmbridge/internal/config"
	"github.com/edvin/ccmbridge/internal/logging"
	"github.com/edvin/ccmbridge/internal/metrics"
	"github.com/edvin/ccmbridge/internal/version"
)

type upOptions struct {
	file       string
	nodes      string
	version    string
	dse        bool
	ssl        bool
	auth       bool
	sni        bool
	statusAddr string
	keep       bool
}

func newUpCommand() *cobra.Command {
	var opts upOptions
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Build and start a cluster, then keep it running until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUp(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "Path to cluster definition YAML file")
	f.StringVar(&opts.nodes, "nodes", "", "Node count per datacenter, e.g. 3,2")
	f.StringVar(&opts.version, "version", "", "Cassandra version, or DSE version with --dse")
	f.BoolVar(&opts.dse, "dse", false, "Create a DSE cluster")
	f.BoolVar(&opts.ssl, "ssl", false, "Enable client encryption")
	f.BoolVar(&opts.auth, "auth", false, "Require client certificates (implies --ssl)")
	f.BoolVar(&opts.sni, "sni", false, "Start the SNI proxy")
	f.StringVar(&opts.statusAddr, "status-addr", ":9100", "Listen address of the status server, empty to disable")
	f.BoolVar(&opts.keep, "keep", false, "Keep the cluster directory on exit")
	return cmd
}

func runUp(cmd *cobra.Command, opts upOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg, "ccmctl")

	h, err := ccm.NewHarness(cfg, logger, ccm.WithArchiver(archive.New(logger, cfg.Archive)))
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	defer h.Close()

	b, err := opts.builder(h)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cluster, err := b.Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.CommandTimeout)
		defer cancel()
		if err := cluster.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("closing cluster")
		}
	}()
	cluster.SetKeepLogs(opts.keep)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is up\n", cluster)
	fmt.Fprintf(out, "  contact points: %s\n", strings.Join(cluster.ContactPoints(), ","))
	fmt.Fprintf(out, "  binary port:    %d\n", cluster.BinaryPort())
	fmt.Fprintf(out, "  directory:      %s\n", cluster.Dir())

	if opts.statusAddr != "" {
		srv := metrics.NewServer(opts.statusAddr, func() any { return cluster.Status() })
		go serve(logger, srv)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down cluster")
	return nil
}

func serve(logger zerolog.Logger, srv *http.Server) {
	logger.Info().Str("addr", srv.Addr).Msg("starting status server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("status server failed")
	}
}

// builder applies the definition file first so that flags override it.
func (o upOptions) builder(h *ccm.Harness) (*ccm.Builder, error) {
	b := h.Builder()
	if o.file != "" {
		def, err := clusterdef.Load(o.file)
		if err != nil {
			return nil, err
		}
		if b, err = clusterdef.Apply(def, b); err != nil {
			return nil, err
		}
	}
	if o.nodes != "" {
		nodes, err := parseNodes(o.nodes)
		if err != nil {
			return nil, err
		}
		b.WithNodes(nodes...)
	}
	if o.dse {
		b.WithDSE(true)
	}
	if o.version != "" {
		v, err := version.Parse(o.version)
		if err != nil {
			return nil, err
		}
		b.WithVersion(v)
	}
	if o.auth {
		b.WithAuth()
	} else if o.ssl {
		b.WithSSL()
	}
	if o.sni {
		b.WithSNIProxy()
	}
	return b, nil
}

func parseNodes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	nodes := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid node count %q", p)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
