package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"KAFKA_BROKERS":       "k1:9092, k2:9092",
		"SCYLLA_HOSTS":        "s1",
		"REDIS_ADDR":          "redis:6379",
		"STORE_DRIVER":        "postgres",
		"PRESENCE_BROADCAST":  "true",
		"GATEWAY_NODE_ID":     "7",
		"DIRECTORY_CACHE_TTL": "30s",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Store.ScyllaHosts[0] != "s1" || cfg.Redis.Addr != "redis:6379" || cfg.Store.Driver != "postgres" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if !cfg.Gateway.PresenceBroadcast || cfg.NodeIDs.Gateway != 7 || cfg.Directory.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected parsed values %+v", cfg)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := Default()
	if err := cfg.applyEnv(envMap(map[string]string{"API_NODE_ID": "abc"})); err == nil {
		t.Fatal("expected error for non-numeric API_NODE_ID")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("store:\n  driver: memory\ngateway:\n  addr: \":9000\"\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "memory" || cfg.Gateway.Addr != ":9000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env should win over file, got %q", cfg.Log.Level)
	}
	if cfg.API.Addr != ":8081" {
		t.Fatalf("defaults should survive, got %q", cfg.API.Addr)
	}
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown driver to fail")
	}
}

func TestValidateRejectsSharedNodeID(t *testing.T) {
	cfg := Default()
	cfg.NodeIDs.API = cfg.NodeIDs.Gateway
	if err := cfg.Validate(); err == nil {
		t.Fatal("gateway and api on one node id must fail")
	}

	cfg = Default()
	cfg.NodeIDs.Gateway = 1024
	if err := cfg.Validate(); err == nil {
		t.Fatal("node id past the 10-bit range must fail")
	}
}

func TestDefaultNodesNeverCollide(t *testing.T) {
	cfg := Default()
	gw, err := snowflake.NewNode(cfg.NodeIDs.Gateway)
	if err != nil {
		t.Fatal(err)
	}
	api, err := snowflake.NewNode(cfg.NodeIDs.API)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[int64]bool, 20000)
	for i := 0; i < 10000; i++ {
		a, b := gw.Generate(), api.Generate()
		if seen[a] || seen[b] || a == b {
			t.Fatalf("duplicate id after %d rounds", i)
		}
		seen[a], seen[b] = true, true
	}
}
