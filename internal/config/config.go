// Package config implements the CLI/environment surface of spec §6: one
// command, every option overridable through the ALFA_* environment
// prefix, flags layered on top via the standard flag package the way the
// teacher's main.go does.
package config

import (
	"flag"
	"fmt"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the fully resolved operator configuration: env defaults from
// the ALFA_ prefix, overridden by any CLI flag explicitly set.
type Config struct {
	Parent         string        `envconfig:"PARENT"`
	API            string        `envconfig:"API" default:"http://localhost:8001"`
	Dump           string        `envconfig:"DUMP"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	DryRun         bool          `envconfig:"DRY_RUN" default:"false"`
	TemplateFilter string        `envconfig:"TEMPLATE_FILTER" default:".*"`
	AppFilter      string        `envconfig:"APP_FILTER" default:".*"`
	Cooldown       time.Duration `envconfig:"COOLDOWN" default:"5s"`
	MetricsAddr    string        `envconfig:"METRICS_ADDR" default:":8080"`

	TemplateFilterRegexp *regexp.Regexp `ignored:"true"`
	AppFilterRegexp      *regexp.Regexp `ignored:"true"`
}

// Load reads ALFA_*-prefixed environment variables, then layers CLI flags
// from args on top of them, and compiles the template/app regexes.
func Load(args []string) (Config, error) {
	var cfg Config
	if err := envconfig.Process("alfa", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: reading environment: %w", err)
	}

	fs := flag.NewFlagSet("alfaoperator", flag.ContinueOnError)
	fs.StringVar(&cfg.Parent, "parent", cfg.Parent, "parent kind this operator instance services (required)")
	fs.StringVar(&cfg.API, "api", cfg.API, "base URL of the upstream REST API")
	fs.StringVar(&cfg.Dump, "dump", cfg.Dump, "directory to dump every aggregation stage and reconcile body into")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "render and dump, skip POST/PUT")
	fs.StringVar(&cfg.TemplateFilter, "template-filter", cfg.TemplateFilter, "regex filtering AlfaTemplate names")
	fs.StringVar(&cfg.AppFilter, "app-filter", cfg.AppFilter, "regex filtering app.kubernetes.io/name label values")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "debounce window before a render cycle runs")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics and /healthz on")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Parent == "" {
		return Config{}, fmt.Errorf("config: --parent is required")
	}

	var err error
	cfg.TemplateFilterRegexp, err = regexp.Compile(cfg.TemplateFilter)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid --template-filter: %w", err)
	}
	cfg.AppFilterRegexp, err = regexp.Compile(cfg.AppFilter)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid --app-filter: %w", err)
	}

	return cfg, nil
}
