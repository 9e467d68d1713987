// Command alfaoperator runs the template-driven reconciliation loop: it
// discovers the upstream API's kinds, watches AlfaTemplate objects for
// the configured parent kind, and keeps one template controller running
// per matching AlfaTemplate for as long as it exists.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/cluster"
	"github.com/illallangi/alfaoperator/internal/config"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/dump"
	"github.com/illallangi/alfaoperator/internal/pipeline"
	"github.com/illallangi/alfaoperator/internal/reconcile"
	"github.com/illallangi/alfaoperator/internal/render"
	"github.com/illallangi/alfaoperator/internal/restclient"
	"github.com/illallangi/alfaoperator/internal/template"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"k8s.io/client-go/rest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	zapLog, err := buildZapLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zapLog.Sync()
	log := zapr.NewLogger(zapLog)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	restCfg := &rest.Config{Host: cfg.API}
	registry, err := apikind.NewRegistry(restCfg, log)
	if err != nil {
		return fmt.Errorf("building API kind registry: %w", err)
	}
	if err := registry.Discover(ctx); err != nil {
		return fmt.Errorf("discovering API kinds: %w", err)
	}

	client := restclient.New()
	dumpWriter := &dump.Writer{Dir: cfg.Dump}

	newRunner := func(ctx context.Context, alfaTemplate document.Doc) (cluster.TemplateRunner, error) {
		spec, err := template.ParseSpec(alfaTemplate)
		if err != nil {
			return nil, err
		}
		pipe := &pipeline.Pipeline{
			Registry: registry,
			Lister:   client,
			Renderer: render.NewTextTemplateRenderer(),
			Reconciler: &reconcile.Reconciler{
				Registry: registry,
				Client:   client,
				Log:      log,
				DryRun:   cfg.DryRun,
			},
			Dump: dumpWriter,
			Log:  log,
		}
		return &template.Controller{
			Spec:       spec,
			Registry:   registry,
			Reconciler: pipe,
			Log:        log,
			Cooldown:   cfg.Cooldown,
		}, nil
	}

	controller := &cluster.Controller{
		Registry:       registry,
		Log:            log,
		ParentKind:     cfg.Parent,
		TemplateFilter: cfg.TemplateFilterRegexp,
		AppFilter:      cfg.AppFilterRegexp,
		NewRunner:      newRunner,
	}

	go serveObservability(cfg.MetricsAddr, log)

	log.Info("starting", "parent", cfg.Parent, "api", cfg.API)
	return controller.Run(ctx)
}

func serveObservability(addr string, log logr.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "observability server exited")
	}
}

func buildZapLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	return cfg.Build()
}
