package config

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

// env builds a lookup over a fixed map.
func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"DATABASE_URL": "postgres://localhost/test"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Sync.Workers != 4 {
		t.Errorf("Sync.Workers = %d, want %d", cfg.Sync.Workers, 4)
	}
	if cfg.Sync.QueueSize != 100 {
		t.Errorf("Sync.QueueSize = %d, want %d", cfg.Sync.QueueSize, 100)
	}
	if cfg.Sync.WaitTimeout != 30*time.Second {
		t.Errorf("Sync.WaitTimeout = %v, want %v", cfg.Sync.WaitTimeout, 30*time.Second)
	}
	if cfg.Sync.CatalogStore != BackendPostgres || cfg.Sync.ScheduleStore != BackendPostgres {
		t.Errorf("stores = %q/%q, want postgres/postgres", cfg.Sync.CatalogStore, cfg.Sync.ScheduleStore)
	}
	if cfg.Upload.MaxFileSize != 20971520 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 20971520)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("Database.AutoMigrate = false, want true")
	}
	if cfg.Kafka.Enabled() {
		t.Error("Kafka.Enabled() = true without brokers")
	}
	if cfg.Sync.Location() != time.Local {
		t.Errorf("Sync.Location() = %v, want Local", cfg.Sync.Location())
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL":  "postgres://localhost/test",
		"SERVER_PORT":   "9090",
		"SYNC_WORKERS":  "8",
		"LOG_LEVEL":     "debug",
		"SYNC_TIMEZONE": "America/Bogota",
		"KAFKA_BROKERS": "k1:9092, k2:9092",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Sync.Workers != 8 {
		t.Errorf("Sync.Workers = %d, want %d", cfg.Sync.Workers, 8)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if got := cfg.Sync.Location().String(); got != "America/Bogota" {
		t.Errorf("Sync.Location() = %q, want America/Bogota", got)
	}
	if !cfg.Kafka.Enabled() || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"DB_URL": "postgres://localhost/alttest"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/alttest" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "postgres://localhost/alttest")
	}
}

func TestLoad_DatabaseRequiredOnlyForPostgres(t *testing.T) {
	if _, err := LoadFrom(env(nil)); err == nil {
		t.Fatal("LoadFrom() expected error for missing DATABASE_URL with postgres stores")
	}

	cfg, err := LoadFrom(env(map[string]string{
		"SYNC_CATALOG_STORE":  "memory",
		"SYNC_SCHEDULE_STORE": "redis",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.NeedsDatabase() {
		t.Error("NeedsDatabase() = true with memory/redis stores")
	}
}

func TestLoad_Duration(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL":        "postgres://localhost/test",
		"SERVER_READ_TIMEOUT": "45s",
		"SYNC_QUEUE_WAIT":     "1m30s",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 45*time.Second)
	}
	if cfg.Sync.QueueWait != 90*time.Second {
		t.Errorf("Sync.QueueWait = %v, want %v", cfg.Sync.QueueWait, 90*time.Second)
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL":    "postgres://localhost/test",
		"TRUSTED_PROXIES": "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(expected) {
		t.Fatalf("TrustedProxies length = %d, want %d", len(cfg.Security.TrustedProxies), len(expected))
	}
	for i, v := range expected {
		if cfg.Security.TrustedProxies[i] != v {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], v)
		}
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
		"SYNC_WORKERS": "many",
	}))
	if err == nil || !strings.Contains(err.Error(), "SYNC_WORKERS") {
		t.Fatalf("LoadFrom() error = %v, want SYNC_WORKERS parse error", err)
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: time.Second, WriteTimeout: time.Minute},
		Database: DatabaseConfig{URL: "postgres://localhost/test", MaxConns: 20, MinConns: 2},
		Upload:   UploadConfig{MaxFileSize: 1},
		Sync: SyncConfig{
			Workers: 1, QueueSize: 1, QueueWait: time.Second, WaitTimeout: time.Second,
			JobRetention: time.Hour, CatalogStore: BackendPostgres, ScheduleStore: BackendPostgres,
		},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 10},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"pool sizing", func(c *Config) { c.Database.MinConns = 50 }, "DB_MAX_CONNS"},
		{"unknown catalog store", func(c *Config) { c.Sync.CatalogStore = "redis" }, "SYNC_CATALOG_STORE"},
		{"unknown schedule store", func(c *Config) { c.Sync.ScheduleStore = "etcd" }, "SYNC_SCHEDULE_STORE"},
		{"bad timezone", func(c *Config) { c.Sync.Timezone = "Mars/Olympus" }, "SYNC_TIMEZONE"},
		{"write timeout below wait", func(c *Config) { c.Server.WriteTimeout = time.Second }, "SERVER_WRITE_TIMEOUT"},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }, "SYNC_WORKERS"},
		{"redis without url", func(c *Config) { c.Sync.ScheduleStore = BackendRedis }, "REDIS_URL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = "postgres://user:hunter2@db/menusync"
	cfg.S3.SecretAccessKey = "s3cr3t"

	s := cfg.String()
	if strings.Contains(s, "hunter2") || strings.Contains(s, "s3cr3t") {
		t.Errorf("String() leaks credentials: %s", s)
	}
}
