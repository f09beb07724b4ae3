package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置不应报错: %v", err)
	}
	if cfg.View.TopN != 20 || cfg.View.HalfWidth != 20 || cfg.View.Margin != 5 {
		t.Fatalf("unexpected view defaults: %+v", cfg.View)
	}
	if cfg.Upstream.Timeframe != "1H" || cfg.Upstream.MinProfit != 10 {
		t.Fatalf("unexpected upstream defaults: %+v", cfg.Upstream)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("unexpected interval %s", cfg.Scheduler.Interval)
	}
	if r, _ := cfg.Export.Comma(); r != ',' {
		t.Fatalf("unexpected delimiter %q", r)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "arb.yaml")
	yaml := []byte("upstream:\n  timeframe: 4H\nview:\n  top_n: 5\nexport:\n  delimiter: \";\"\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ARBEXPLORER_SCHEDULER_INTERVAL", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Upstream.Timeframe != "4H" || cfg.View.TopN != 5 {
		t.Fatalf("file values not applied: %+v %+v", cfg.Upstream, cfg.View)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Fatalf("env override not applied: %s", cfg.Scheduler.Interval)
	}
	if cfg.ResolveTopN(0) != 5 || cfg.ResolveTopN(9) != 9 {
		t.Fatal("ResolveTopN should prefer the override")
	}
	if r, _ := cfg.Export.Comma(); r != ';' {
		t.Fatalf("unexpected delimiter %q", r)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := map[string]string{
		"ARBEXPLORER_UPSTREAM_TIMEFRAME":        "2H",
		"ARBEXPLORER_DATABASE_DRIVER":           "mysql",
		"ARBEXPLORER_ALERTING_TELEGRAM_ENABLED": "true",
		"ARBEXPLORER_VIEW_TOP_N":                "0",
		"ARBEXPLORER_EXPORT_DELIMITER":          "::",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("%s=%s 应校验失败", key, value)
			}
		})
	}
}

func TestDatabaseRequiresDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARBEXPLORER_DATABASE_DRIVER", "sqlite")
	if _, err := Load(""); err == nil {
		t.Fatal("sqlite without dsn should fail")
	}
	t.Setenv("ARBEXPLORER_DATABASE_DSN", "file:arb.db")
	if _, err := Load(""); err != nil {
		t.Fatalf("sqlite with dsn: %v", err)
	}
}
