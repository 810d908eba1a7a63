package config

import (
	"os"
	"strings"
	"testing"
)

const minimalYAML = `
source:
  host: src.example.com
  database: fao
warehouse:
  host: wh.example.com
  database: fao_warehouse
graph:
  host: graph.example.com
  database: fao_graph
`

func TestLoadBytesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("LoadBytes() error: %v", err)
	}

	if cfg.Source.Type != "postgres" {
		t.Errorf("Source.Type = %q, want postgres", cfg.Source.Type)
	}
	if cfg.Source.Port != 5432 {
		t.Errorf("Source.Port = %d, want 5432", cfg.Source.Port)
	}
	if cfg.Graph.GraphName != "fao_graph" {
		t.Errorf("Graph.GraphName = %q, want fao_graph", cfg.Graph.GraphName)
	}
	if !strings.Contains(cfg.Graph.SearchPath, "ag_catalog") {
		t.Errorf("Graph.SearchPath = %q, want ag_catalog first", cfg.Graph.SearchPath)
	}
	if cfg.Migration.BatchSize != 5000 {
		t.Errorf("Migration.BatchSize = %d, want 5000", cfg.Migration.BatchSize)
	}
	if cfg.Migration.ChunkSize != 0 {
		t.Errorf("Migration.ChunkSize = %d, want 0 (adaptive)", cfg.Migration.ChunkSize)
	}
}

func TestLoadBytesMSSQLDefaults(t *testing.T) {
	yaml := strings.Replace(minimalYAML, "source:\n", "source:\n  type: mssql\n", 1)
	cfg, err := LoadBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadBytes() error: %v", err)
	}
	if cfg.Source.Port != 1433 {
		t.Errorf("Source.Port = %d, want 1433", cfg.Source.Port)
	}
	if cfg.Source.Schema != "dbo" {
		t.Errorf("Source.Schema = %q, want dbo", cfg.Source.Schema)
	}
	if !strings.HasPrefix(cfg.SourceDSN(), "sqlserver://") {
		t.Errorf("SourceDSN() = %q, want sqlserver scheme", cfg.SourceDSN())
	}
}

func TestLoadBytesEnvExpansion(t *testing.T) {
	os.Setenv("TEST_WH_PASSWORD", "s3cret")
	defer os.Unsetenv("TEST_WH_PASSWORD")

	yaml := strings.Replace(minimalYAML,
		"warehouse:\n", "warehouse:\n  password: ${TEST_WH_PASSWORD}\n", 1)
	cfg, err := LoadBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadBytes() error: %v", err)
	}
	if cfg.Warehouse.Password != "s3cret" {
		t.Errorf("Warehouse.Password = %q, want expanded env value", cfg.Warehouse.Password)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantSub string
	}{
		{
			name:    "missing warehouse host",
			mutate:  func(y string) string { return strings.Replace(y, "  host: wh.example.com\n", "", 1) },
			wantSub: "warehouse.host",
		},
		{
			name:    "missing graph database",
			mutate:  func(y string) string { return strings.Replace(y, "  database: fao_graph\n", "", 1) },
			wantSub: "graph.database",
		},
		{
			name:    "bad source type",
			mutate:  func(y string) string { return strings.Replace(y, "source:\n", "source:\n  type: oracle\n", 1) },
			wantSub: "source.type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tc.mutate(minimalYAML)))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantSub)
			}
		})
	}
}

func TestDSNEscaping(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("LoadBytes() error: %v", err)
	}
	cfg.Warehouse.User = "fao@admin"
	cfg.Warehouse.Password = "p:ss@word"

	dsn := cfg.WarehouseDSN()
	if strings.Contains(dsn, "p:ss@word") {
		t.Errorf("credentials not escaped in DSN: %q", dsn)
	}
	if !strings.Contains(dsn, "wh.example.com:5432/fao_warehouse") {
		t.Errorf("unexpected DSN: %q", dsn)
	}
}

func TestSanitized(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("LoadBytes() error: %v", err)
	}
	cfg.Graph.Password = "hunter2"

	s := cfg.Sanitized()
	if s.Graph.Password != "[REDACTED]" {
		t.Errorf("Sanitized().Graph.Password = %q, want [REDACTED]", s.Graph.Password)
	}
	if cfg.Graph.Password != "hunter2" {
		t.Error("Sanitized() mutated the original config")
	}
}
