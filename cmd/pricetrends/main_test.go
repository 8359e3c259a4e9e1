package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/idealista-price-trends/config"
	"github.com/aluiziolira/idealista-price-trends/pipeline"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("IDEALISTA_OUTPUT", "/tmp/trends.csv")
	t.Setenv("IDEALISTA_FORMAT", "dual")
	t.Setenv("IDEALISTA_DEDUPE", "500")
	t.Setenv("IDEALISTA_TIMEOUT_SECONDS", "5")
	t.Setenv("IDEALISTA_VERBOSE", "true")

	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.OutputFile != "/tmp/trends.csv" || cfg.OutputFormat != "dual" {
		t.Fatalf("unexpected output settings: %s %s", cfg.OutputFile, cfg.OutputFormat)
	}
	if cfg.DedupeMaxSize != 500 || cfg.Timeout != 5*time.Second || !cfg.Verbose {
		t.Fatalf("unexpected numeric settings: %+v", cfg)
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv("IDEALISTA_DEDUPE", "lots")
	if err := applyEnv(config.DefaultConfig()); err == nil {
		t.Fatalf("expected error for non-numeric IDEALISTA_DEDUPE")
	}
}

func TestCreateWriter(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
		check   func(t *testing.T, p pipeline.Persister)
	}{
		{format: "csv", check: func(t *testing.T, p pipeline.Persister) {
			if _, ok := p.(*pipeline.CSVWriter); !ok {
				t.Fatalf("csv format returned %T", p)
			}
		}},
		{format: "json", check: func(t *testing.T, p pipeline.Persister) {
			if _, ok := p.(*pipeline.JSONWriter); !ok {
				t.Fatalf("json format returned %T", p)
			}
		}},
		{format: "dual", check: func(t *testing.T, p pipeline.Persister) {
			if _, ok := p.(*pipeline.MultiWriter); !ok {
				t.Fatalf("dual format returned %T", p)
			}
		}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.OutputFormat = tt.format
			cfg.OutputFile = filepath.Join(t.TempDir(), "trends.csv")

			p, err := createWriter(context.Background(), cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for format %q", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("create writer: %v", err)
			}
			tt.check(t, p)
		})
	}
}
