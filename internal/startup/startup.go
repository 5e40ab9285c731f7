package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"descale-qc/internal/decoder"
	"descale-qc/internal/logging"
	"descale-qc/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
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

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// DatabaseFile is the run history file inside DatabaseDir.
const DatabaseFile = "runs.db"

// Config holds all application configuration
type Config struct {
	OutputDir       string
	CacheDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	VipsEnabled     bool
	Workers         int

	// Derived paths
	DatabasePath  string
	StatsCacheDir string

	// Feature flags based on directory availability
	HistoryEnabled    bool
	StatsCacheEnabled bool
}

// LoadConfig loads configuration for the catalogue server, printing the
// banner and every setting. The database directory is required.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := resolve(true)
	if err != nil {
		return nil, err
	}
	if !config.HistoryEnabled {
		return nil, fmt.Errorf("database directory is not writable (required for database): %s", config.DatabaseDir)
	}
	return config, nil
}

// LoadToolConfig loads the same environment for the command line tools.
// Nothing is printed above debug level, and an unusable database or cache
// directory only disables the feature.
func LoadToolConfig() (*Config, error) {
	return resolve(false)
}

func resolve(verbose bool) (*Config, error) {
	info := logging.Debug
	if verbose {
		info = logging.Info
	}

	section(info, "CONFIGURATION")

	outputDir := getEnv("OUTPUT_DIR", ".")
	cacheDir := getEnv("CACHE_DIR", defaultCacheDir())
	databaseDir := getEnv("DATABASE_DIR", cacheDir)
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	vipsEnabled := getEnvBool("VIPS_ENABLED", true)
	workerCount := workers.ForCPU(0)

	info("  OUTPUT_DIR:          %s", outputDir)
	info("  CACHE_DIR:           %s", cacheDir)
	info("  DATABASE_DIR:        %s", databaseDir)
	info("  PORT:                %s", port)
	info("  METRICS_PORT:        %s", metricsPort)
	info("  METRICS_ENABLED:     %v", metricsEnabled)
	info("  LOG_HEALTH_CHECKS:   %v", logHealthChecks)
	info("  VIPS_ENABLED:        %v", vipsEnabled)
	info("  %s:    %d", workers.EnvOverride, workerCount)
	info("  LOG_LEVEL:           %s", logging.GetLevel())

	section(info, "DIRECTORY SETUP")

	var err error
	if outputDir, err = filepath.Abs(outputDir); err != nil {
		return nil, fmt.Errorf("failed to resolve output directory path: %w", err)
	}
	if cacheDir, err = filepath.Abs(cacheDir); err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	if databaseDir, err = filepath.Abs(databaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	info("  Output directory (absolute):   %s", outputDir)
	info("  Cache directory (absolute):    %s", cacheDir)
	info("  Database directory (absolute): %s", databaseDir)

	config := &Config{
		OutputDir:       outputDir,
		CacheDir:        cacheDir,
		DatabaseDir:     databaseDir,
		Port:            port,
		MetricsPort:     metricsPort,
		MetricsEnabled:  metricsEnabled,
		LogHealthChecks: logHealthChecks,
		VipsEnabled:     vipsEnabled,
		Workers:         workerCount,
		DatabasePath:    filepath.Join(databaseDir, DatabaseFile),
		StatsCacheDir:   filepath.Join(cacheDir, "framestats"),
	}

	if err := ensureDirectory(outputDir, "output"); err != nil {
		return nil, fmt.Errorf("output directory error: %w", err)
	}

	config.HistoryEnabled = setupOptionalDir(databaseDir, "database")
	config.StatsCacheEnabled = setupOptionalDir(config.StatsCacheDir, "framestats cache")

	info("")
	info("  Feature availability:")
	info("    Run history:  %s", enabledString(config.HistoryEnabled))
	info("    Stats cache:  %s", enabledString(config.StatsCacheEnabled))
	info("    Metrics:      %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "descale-qc")
	}
	return filepath.Join(os.TempDir(), "descale-qc")
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	section(logging.Info, "DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// InitDecoders checks ffmpeg and starts libvips when enabled. Missing
// ffmpeg only limits input to image sequences.
func InitDecoders(vipsEnabled bool) {
	section(logging.Debug, "DECODER INITIALIZATION")

	if err := decoder.CheckFFmpeg(); err != nil {
		logging.Debug("  ffmpeg unavailable, only image sequences can be read: %v", err)
	} else {
		logging.Debug("  [OK] FFmpeg and FFprobe are available")
	}

	if !vipsEnabled {
		logging.Debug("  libvips disabled (VIPS_ENABLED=false), using pure Go image loaders")
		return
	}
	if err := decoder.InitVips(); err != nil {
		logging.Warn("libvips unavailable, using pure Go image loaders: %v", err)
	} else {
		logging.Debug("  [OK] libvips initialized")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
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

// LogHTTPRoutes logs the registered routes, sorted by path, at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section(logging.Info, "HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}
		sort.SliceStable(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })

		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, route := range routes {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}

	logging.Info("    Health check logging: %s", enabledString(logHealthChecks))
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	section(logging.Info, "SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Catalogues:    http://0.0.0.0:%s/api/runs", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(logging.Info, fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

const rule = "------------------------------------------------------------"

// section logs a blank line and a ruled title.
func section(log func(string, ...interface{}), title string) {
	log("")
	log(rule)
	log(title)
	log(rule)
}

func printBanner() {
	banner := `
------------------------------------------------------------
     _                _                        
  __| | ___  ___  ___| | ___        __ _  ___  
 / _' |/ _ \/ __|/ __| |/ _ \_____ / _' |/ __| 
| (_| |  __/\__ \ (__| |  __/_____| (_| | (__  
 \__,_|\___||___/\___|_|\___|      \__, |\___| 
                                      |_|      
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	section(logging.Info, "SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
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
		logging.Debug("    Directory does not exist, creating...")
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

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
