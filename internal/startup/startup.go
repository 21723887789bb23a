package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/transcoder"
	"media-shrinker/internal/workers"
)

// ServiceName identifies this service in health and version responses.
const ServiceName = "media-shrinker"

// Status store backends accepted in STATUS_STORE.
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// maxConversionWorkers caps the automatic worker count. Every worker may run
// a multi-threaded ffmpeg, so more than this rarely helps.
const maxConversionWorkers = 8

// Build information, set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains build-time information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo holds information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool

	Bucket      string
	AWSRegion   string
	S3Endpoint  string
	S3PathStyle bool

	RedisURL    string
	StatusStore string
	DatabaseDir string
	StatusTTL   time.Duration

	TargetBytes  int64
	WorkDir      string
	ImageEncoder string

	WorkerConcurrency int
	JobTimeout        time.Duration
	PresignTTL        time.Duration

	APIRateLimit float64
	APIRateBurst int
	CORSOrigins  []string

	MemoryLimit int64
	MemoryRatio float64

	LogHealthChecks bool
}

// DatabasePath returns the SQLite file used when STATUS_STORE=sqlite.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DatabaseDir, "status.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("metrics_port", "9090")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("bucket_name", "")
	v.SetDefault("aws_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_path_style", false)
	v.SetDefault("redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("status_store", StoreRedis)
	v.SetDefault("database_dir", "/database")
	v.SetDefault("status_ttl", "168h")
	v.SetDefault("target_bytes", 5*1024*1024)
	v.SetDefault("work_dir", filepath.Join(os.TempDir(), ServiceName))
	v.SetDefault("image_encoder", transcoder.EncoderAuto)
	v.SetDefault("worker_concurrency", 0)
	v.SetDefault("job_timeout", "30m")
	v.SetDefault("presign_ttl", "1h")
	v.SetDefault("api_rate_limit", 20.0)
	v.SetDefault("api_rate_burst", 40)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("log_health_checks", false)
	v.SetDefault("memory_limit", 0)
	v.SetDefault("memory_ratio", 0.5)
}

// LoadConfig loads configuration from .env.local, an optional CONFIG_FILE and
// the environment, in increasing order of precedence. It also prints the
// startup banner and prepares the working directories.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if err := godotenv.Load(".env.local"); err == nil {
		logging.Info("  Loaded environment from .env.local")
	} else if !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("  Could not read .env.local: %v", err)
	}

	v := viper.New()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		logging.Info("  Config file:     %s", path)
	}

	config, err := loadConfig(v)
	if err != nil {
		return nil, err
	}

	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY VALIDATION")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(config.WorkDir, "work"); err != nil {
		return nil, fmt.Errorf("work directory: %w", err)
	}
	if err := testWriteAccess(config.WorkDir); err != nil {
		return nil, fmt.Errorf("work directory is not writable: %w", err)
	}
	logging.Info("  [OK] Work directory:     %s (writable)", config.WorkDir)

	if config.StatusStore == StoreSQLite {
		if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
			return nil, fmt.Errorf("database directory: %w", err)
		}
		if err := testWriteAccess(config.DatabaseDir); err != nil {
			return nil, fmt.Errorf("database directory is not writable: %w", err)
		}
		logging.Info("  [OK] Database directory: %s (writable)", config.DatabaseDir)
	}

	return config, nil
}

// loadConfig reads every setting from v after binding it to the environment.
func loadConfig(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	config := &Config{
		Port:           v.GetString("port"),
		MetricsPort:    v.GetString("metrics_port"),
		MetricsEnabled: v.GetBool("metrics_enabled"),

		Bucket:      strings.TrimSpace(v.GetString("bucket_name")),
		AWSRegion:   v.GetString("aws_region"),
		S3Endpoint:  v.GetString("s3_endpoint"),
		S3PathStyle: v.GetBool("s3_path_style"),

		RedisURL:    v.GetString("redis_url"),
		StatusStore: strings.ToLower(v.GetString("status_store")),
		DatabaseDir: v.GetString("database_dir"),

		TargetBytes:  v.GetInt64("target_bytes"),
		WorkDir:      v.GetString("work_dir"),
		ImageEncoder: strings.ToLower(v.GetString("image_encoder")),

		APIRateLimit: v.GetFloat64("api_rate_limit"),
		APIRateBurst: v.GetInt("api_rate_burst"),
		CORSOrigins:  splitList(v.GetString("cors_origins")),

		MemoryLimit: v.GetInt64("memory_limit"),
		MemoryRatio: v.GetFloat64("memory_ratio"),

		LogHealthChecks: v.GetBool("log_health_checks"),
	}

	var err error
	if config.StatusTTL, err = parseDuration(v, "status_ttl"); err != nil {
		return nil, err
	}
	if config.JobTimeout, err = parseDuration(v, "job_timeout"); err != nil {
		return nil, err
	}
	if config.PresignTTL, err = parseDuration(v, "presign_ttl"); err != nil {
		return nil, err
	}

	// WORKER_CONCURRENCY set in the environment is honored by workers.Count;
	// a value from the config file is used as given.
	config.WorkerConcurrency = v.GetInt("worker_concurrency")
	if config.WorkerConcurrency <= 0 {
		config.WorkerConcurrency = workers.ForConversions(maxConversionWorkers)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return errors.New("BUCKET_NAME is required")
	}
	if c.TargetBytes <= 0 {
		return fmt.Errorf("TARGET_BYTES must be positive, got %d", c.TargetBytes)
	}
	switch c.StatusStore {
	case StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("STATUS_STORE must be %q or %q, got %q", StoreRedis, StoreSQLite, c.StatusStore)
	}
	switch c.ImageEncoder {
	case transcoder.EncoderAuto, transcoder.EncoderNative, transcoder.EncoderVips, transcoder.EncoderFFmpeg:
	default:
		return fmt.Errorf("IMAGE_ENCODER %q is not supported", c.ImageEncoder)
	}
	if c.APIRateLimit <= 0 || c.APIRateBurst <= 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}
	if c.PresignTTL <= 0 || c.JobTimeout <= 0 {
		return fmt.Errorf("PRESIGN_TTL and JOB_TIMEOUT must be positive")
	}
	return nil
}

// parseDuration reads a Go duration string. Zero is allowed and disables
// whatever the setting controls.
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(key), raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", strings.ToUpper(key), raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func logConfig(c *Config) {
	logging.Info("  Bucket:          %s", c.Bucket)
	if c.S3Endpoint != "" {
		logging.Info("  S3 endpoint:     %s (path style: %s)", c.S3Endpoint, enabledString(c.S3PathStyle))
	}
	logging.Info("  Status store:    %s (ttl %v)", c.StatusStore, c.StatusTTL)
	logging.Info("  Target size:     %d bytes", c.TargetBytes)
	logging.Info("  Image encoder:   %s", c.ImageEncoder)
	logging.Info("  Workers:         %d (job timeout %v)", c.WorkerConcurrency, c.JobTimeout)
	logging.Info("  Presign TTL:     %v", c.PresignTTL)
	logging.Info("  API rate limit:  %.1f req/s (burst %d)", c.APIRateLimit, c.APIRateBurst)
	logging.Info("  HTTP port:       %s", c.Port)
	if c.MetricsEnabled {
		logging.Info("  Metrics port:    %s", c.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Log level:       %s", logging.GetLevel())
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// LogTranscoderInit logs the ffmpeg version and the image encoder in use.
func LogTranscoderInit(ffmpegVersion, imageEncoder string, vipsAvailable bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] ffmpeg:        %s", ffmpegVersion)
	logging.Info("  [OK] Image encoder: %s", imageEncoder)
	logging.Info("       libvips:       %s", enabledString(vipsAvailable))
}

// LogStatusStoreInit logs the status store backend and how long it took to open.
func LogStatusStoreInit(backend, target string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("STATUS STORE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] %s ready at %s (%v)", backend, target, duration)
}

// LogQueueInit logs the job queue configuration.
func LogQueueInit(queueName string, concurrency, ffmpegThreads int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("JOB QUEUE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Queue:           %s", queueName)
	logging.Info("  Workers:         %d", concurrency)
	if ffmpegThreads > 0 {
		logging.Info("  ffmpeg threads:  %d per worker", ffmpegThreads)
	} else {
		logging.Info("  ffmpeg threads:  auto")
	}
}

// GetRoutes walks the router and returns all registered routes
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the registered routes at debug level and the HTTP
// logging settings at info level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			label := group
			if label == "" {
				label = "root"
			}
			logging.Debug("  [%s]", label)
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup returns the first path segment, or two segments under /api.
func getRouteGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if parts[0] == "api" && len(parts) > 1 {
		return "api/" + strings.SplitN(parts[1], "/", 2)[0]
	}
	return parts[0]
}

// ServerConfig holds the values printed once the server is listening.
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs the listening endpoints.
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  API:             http://0.0.0.0:%s/api", config.Port)
	logging.Info("  Health:          http://0.0.0.0:%s/healthz", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs the start of a graceful shutdown.
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step that is about to run.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a finished shutdown step.
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs the end of the shutdown sequence.
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs and exits.
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                   _ _                 _          _       _
  _ __ ___   ___  __| (_) __ _      ___| |__  _ __(_)_ __ | | _____ _ __
 | '_ ' _ \ / _ \/ _' | |/ _' |____/ __| '_ \| '__| | '_ \| |/ / _ \ '__|
 | | | | | |  __/ (_| | | (_| |____\__ \ | | | |  | | | | |   <  __/ |
 |_| |_| |_|\___|\__,_|_|\__,_|    |___/_| |_|_|  |_|_| |_|_|\_\___|_|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write test file %s: %v", name, err)
	}
	return nil
}
