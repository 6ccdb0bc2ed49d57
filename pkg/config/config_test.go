package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"TAPESTRY_CONFIG", "TAPESTRY_ADDR", "TAPESTRY_STORE", "TAPESTRY_DATA_DIR", "TAPESTRY_LOG_LEVEL", "TAPESTRY_AUTOSAVE"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tapestry.yaml")
	body := "addr: \":9000\"\nstore: files\ndata_dir: /srv/weaves\nlog_level: debug\nautosave: 5s\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TAPESTRY_CONFIG", path)
	t.Setenv("TAPESTRY_ADDR", ":9100")
	t.Setenv("TAPESTRY_AUTOSAVE", "1m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{Addr: ":9100", Store: StoreFiles, DataDir: "/srv/weaves", LogLevel: "debug", Autosave: time.Minute}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", l)
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"store", map[string]string{"TAPESTRY_STORE": "postgres"}},
		{"level", map[string]string{"TAPESTRY_LOG_LEVEL": "loud"}},
		{"autosave", map[string]string{"TAPESTRY_AUTOSAVE": "soon"}},
		{"negative autosave", map[string]string{"TAPESTRY_AUTOSAVE": "-1s"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected error")
			}
		})
	}

	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}
}
