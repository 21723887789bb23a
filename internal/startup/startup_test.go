package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BUCKET_NAME", "media")
	t.Setenv("WORKER_CONCURRENCY", "")

	cfg, err := loadConfig(viper.New())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Port != "8080" || cfg.MetricsPort != "9090" || !cfg.MetricsEnabled {
		t.Errorf("ports = %s/%s metrics=%v", cfg.Port, cfg.MetricsPort, cfg.MetricsEnabled)
	}
	if cfg.TargetBytes != 5*1024*1024 {
		t.Errorf("TargetBytes = %d", cfg.TargetBytes)
	}
	if cfg.StatusStore != StoreRedis {
		t.Errorf("StatusStore = %q", cfg.StatusStore)
	}
	if cfg.StatusTTL != 168*time.Hour {
		t.Errorf("StatusTTL = %v", cfg.StatusTTL)
	}
	if cfg.JobTimeout != 30*time.Minute || cfg.PresignTTL != time.Hour {
		t.Errorf("JobTimeout = %v PresignTTL = %v", cfg.JobTimeout, cfg.PresignTTL)
	}
	if cfg.APIRateLimit != 20 || cfg.APIRateBurst != 40 {
		t.Errorf("rate = %v burst = %d", cfg.APIRateLimit, cfg.APIRateBurst)
	}
	if cfg.WorkerConcurrency < 1 || cfg.WorkerConcurrency > maxConversionWorkers {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.MemoryLimit != 0 || cfg.MemoryRatio != 0.5 {
		t.Errorf("MemoryLimit = %d MemoryRatio = %v", cfg.MemoryLimit, cfg.MemoryRatio)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("BUCKET_NAME", " uploads ")
	t.Setenv("STATUS_STORE", "SQLite")
	t.Setenv("TARGET_BYTES", "1048576")
	t.Setenv("IMAGE_ENCODER", "native")
	t.Setenv("WORKER_CONCURRENCY", "3")
	t.Setenv("STATUS_TTL", "0")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("S3_PATH_STYLE", "true")
	t.Setenv("MEMORY_LIMIT", "2147483648")

	cfg, err := loadConfig(viper.New())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Bucket != "uploads" {
		t.Errorf("Bucket = %q", cfg.Bucket)
	}
	if cfg.StatusStore != StoreSQLite {
		t.Errorf("StatusStore = %q", cfg.StatusStore)
	}
	if cfg.TargetBytes != 1048576 {
		t.Errorf("TargetBytes = %d", cfg.TargetBytes)
	}
	if cfg.ImageEncoder != "native" {
		t.Errorf("ImageEncoder = %q", cfg.ImageEncoder)
	}
	if cfg.WorkerConcurrency != 3 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.StatusTTL != 0 {
		t.Errorf("StatusTTL = %v, want 0", cfg.StatusTTL)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.S3PathStyle {
		t.Error("S3PathStyle = false")
	}
	if cfg.MemoryLimit != 2<<30 {
		t.Errorf("MemoryLimit = %d", cfg.MemoryLimit)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("TARGET_BYTES", "2048")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "bucket_name: from-file\ntarget_bytes: 999\njob_timeout: 5m\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Bucket != "from-file" {
		t.Errorf("Bucket = %q", cfg.Bucket)
	}
	if cfg.TargetBytes != 2048 {
		t.Errorf("TargetBytes = %d, environment should win over file", cfg.TargetBytes)
	}
	if cfg.JobTimeout != 5*time.Minute {
		t.Errorf("JobTimeout = %v", cfg.JobTimeout)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing bucket", map[string]string{"BUCKET_NAME": ""}, "BUCKET_NAME"},
		{"bad store", map[string]string{"STATUS_STORE": "etcd"}, "STATUS_STORE"},
		{"bad encoder", map[string]string{"IMAGE_ENCODER": "gimp"}, "IMAGE_ENCODER"},
		{"zero target", map[string]string{"TARGET_BYTES": "0"}, "TARGET_BYTES"},
		{"bad duration", map[string]string{"JOB_TIMEOUT": "soon"}, "JOB_TIMEOUT"},
		{"negative duration", map[string]string{"STATUS_TTL": "-1h"}, "STATUS_TTL"},
		{"zero presign", map[string]string{"PRESIGN_TTL": "0"}, "PRESIGN_TTL"},
		{"zero rate", map[string]string{"API_RATE_LIMIT": "0"}, "API_RATE_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BUCKET_NAME", "media")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfig(viper.New())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{DatabaseDir: "/data"}
	if got := cfg.DatabasePath(); got != filepath.Join("/data", "status.db") {
		t.Errorf("DatabasePath() = %q", got)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"*", 1},
		{" a , b ,, c ", 3},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); len(got) != tt.want {
			t.Errorf("splitList(%q) = %v, want %d entries", tt.in, got, tt.want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.HandleFunc("/healthz", noop).Methods(http.MethodGet, http.MethodHead)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", noop).Methods(http.MethodGet).Name("status")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}

	var found bool
	methods := map[string]int{}
	for _, route := range routes {
		methods[route.Path]++
		if route.Path == "/api/status" && route.Name == "status" && route.Method == http.MethodGet {
			found = true
		}
	}
	if !found {
		t.Errorf("named /api/status route missing from %+v", routes)
	}
	if methods["/healthz"] != 2 {
		t.Errorf("/healthz listed %d times, want one per method", methods["/healthz"])
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "healthz"},
		{"/api/multipart/initiate", "api/multipart"},
		{"/api/status", "api/status"},
		{"/api", "api"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestEnsureDirectory(t *testing.T) {
	base := t.TempDir()

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(base, "a", "b")
		if err := ensureDirectory(dir, "work"); err != nil {
			t.Fatalf("ensureDirectory: %v", err)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory not created: %v", err)
		}
	})

	t.Run("rejects a file", func(t *testing.T) {
		file := filepath.Join(base, "file")
		if err := os.WriteFile(file, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		if err := ensureDirectory(file, "work"); err == nil {
			t.Error("expected error for a regular file")
		}
	})
}

func TestWriteAccess(t *testing.T) {
	dir := t.TempDir()
	if err := testWriteAccess(dir); err != nil {
		t.Fatalf("testWriteAccess: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}

	if err := testWriteAccess(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestEnabledString(t *testing.T) {
	if enabledString(true) != "enabled" || enabledString(false) != "disabled" {
		t.Error("unexpected enabledString output")
	}
}

// Logging helpers must not panic with zero values.
func TestLogHelpers(_ *testing.T) {
	LogTranscoderInit("ffmpeg version 7.0", "auto", false)
	LogStatusStoreInit(StoreRedis, "redis://localhost:6379/0", time.Millisecond)
	LogQueueInit("media", 2, 0)
	LogHTTPRoutes(mux.NewRouter(), false)
	LogServerStarted(ServerConfig{Port: "8080", MetricsPort: "9090", MetricsEnabled: true})
	LogShutdownInitiated("SIGTERM")
	LogShutdownStep("Stopping")
	LogShutdownStepComplete("Stopped")
	LogShutdownComplete()
}
