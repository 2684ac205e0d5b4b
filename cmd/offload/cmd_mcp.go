package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"offload/internal/version"
	"offload/pkg/mcpserver"
)

// mcpConfig holds flags for the mcp command.
type mcpConfig struct {
	metricsAddr string
}

// newMCPCmd creates the "offload mcp" subcommand.
func newMCPCmd(flags *rootFlags) *cobra.Command {
	var cfg mcpConfig

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the delegation tools over MCP on stdio",
		Long: "Runs the pipeline as a long-lived queue and exposes delegate_task,\n" +
			"task_status, and list_models to an MCP client on stdin/stdout.\n" +
			"Logs go to stderr.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return runMCP(cmd.Context(), a, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	return cmd
}

func runMCP(ctx context.Context, a *app, cfg mcpConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := a.newPipeline(reg)
	if err != nil {
		return err
	}
	if err := p.dispatcher.Start(ctx); err != nil {
		return err
	}

	srv := mcpserver.New(version.String(), mcpserver.Deps{
		Service: p.client,
		Factory: p.factory,
		Queue:   p.dispatcher,
		Status:  p.status,
		Logger:  a.log.Named("mcp"),
	})

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		stdio := server.NewStdioServer(srv)
		stdio.SetErrorLogger(zap.NewStdLog(a.log.Named("stdio")))
		a.log.Info("mcp server listening on stdio", zap.String("version", version.String()))
		if err := stdio.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	})

	if cfg.metricsAddr != "" {
		hs := &http.Server{
			Addr:              cfg.metricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("metrics listening", zap.String("addr", cfg.metricsAddr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer scancel()
			return hs.Shutdown(sctx)
		})
	}

	err = g.Wait()

	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer scancel()
	if serr := p.dispatcher.Shutdown(sctx); serr != nil {
		a.log.Warn("dispatcher shutdown", zap.Error(serr))
	}
	return err
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
