// Package config provides application configuration management with support
// for command-line flags, environment variables and a YAML config file.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/resolve"
	"github.com/pathwatch/pathwatch/internal/validation"
)

// Config holds the application configuration.
type Config struct {
	Watch  WatchConfig  `yaml:"watch"`
	Notify NotifyConfig `yaml:"notify"`
	Logger LoggerConfig `yaml:"logger"`
	Output OutputConfig `yaml:"output"`
	Stats  StatsConfig  `yaml:"stats"`
}

// WatchConfig selects what gets watched and how.
type WatchConfig struct {
	// Paths are the files and directories to watch.
	Paths []string `yaml:"paths" validate:"min=1,dive,required"`
	// Events is a comma-separated list of event names, "all" for every
	// normal event.
	Events string `yaml:"events" validate:"required"`
	// Recursive expands directories into their whole subtree.
	Recursive bool `yaml:"recursive"`
	// AutoAdd watches subdirectories created after startup.
	AutoAdd bool `yaml:"auto_add"`
	// Glob applies pattern expansion to Paths.
	Glob bool `yaml:"glob"`
	// Exclude lists glob patterns of paths never to watch.
	Exclude []string `yaml:"exclude"`
	// ExcludeRe lists regular expressions of paths never to watch.
	ExcludeRe []string `yaml:"exclude_re"`
}

// NotifyConfig tunes the event loop.
type NotifyConfig struct {
	// Coalesce drops duplicate events within one drain (default: false).
	Coalesce bool `yaml:"coalesce"`
	// ReadFrequency throttles stream reads, zero reads as fast as
	// events arrive (default: 0).
	ReadFrequency time.Duration `yaml:"read_frequency" validate:"gte=0"`
	// Threshold defers reading until this many bytes are pending
	// (default: 0).
	Threshold int `yaml:"threshold" validate:"gte=0"`
	// Timeout bounds one wait for events, negative blocks (default: -1).
	Timeout time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// OutputConfig controls how events are printed.
type OutputConfig struct {
	// Raw prints the undecorated kernel fields instead of enriched
	// events (default: false).
	Raw bool `yaml:"raw"`
}

// StatsConfig controls event accounting.
type StatsConfig struct {
	// Enabled counts events and prints a summary on shutdown.
	Enabled bool `yaml:"enabled"`
	// DumpPath additionally writes the summary to this file.
	DumpPath string `yaml:"dump_path"`
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. YAML config file.
// 4. Default values (lowest priority).
//
// Watch paths come from the remaining command-line arguments, falling
// back to the config file's list.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("pathwatch", flag.ContinueOnError)

	configFile := fs.String("config", "", "Path to YAML config file")
	events := fs.String("events", "", "Comma-separated event names (default: all)")
	recursive := fs.String("recursive", "", "Watch directories recursively (default: false)")
	autoAdd := fs.String("auto-add", "", "Watch newly created subdirectories (default: false)")
	globFlag := fs.String("glob", "", "Expand glob patterns in paths (default: false)")
	exclude := fs.String("exclude", "", "Comma-separated glob patterns to exclude")
	excludeRe := fs.String("exclude-re", "", "Comma-separated regexps to exclude")
	coalesce := fs.String("coalesce", "", "Drop duplicate events within a drain (default: false)")
	readFrequency := fs.String("read-frequency", "", "Minimum interval between reads (default: 0)")
	threshold := fs.String("threshold", "", "Defer reading below this many pending bytes (default: 0)")
	timeout := fs.String("timeout", "", "Event wait timeout, negative blocks (default: -1)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (text, json)")
	rawOutput := fs.String("raw", "", "Print undecorated kernel events (default: false)")
	statsEnabled := fs.String("stats", "", "Count events and print a summary on shutdown (default: false)")
	statsDump := fs.String("stats-dump", "", "Write the stats summary to this file on shutdown")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Start from the file so flags and env can override it.
	cfg := &Config{}
	file := getConfigValue(*configFile, "PATHWATCH_CONFIG", "")
	if file != "" {
		if err := loadConfigFile(cfg, file); err != nil {
			return nil, err
		}
	}

	cfg.Watch.Events = getConfigValue(*events, "PATHWATCH_EVENTS", fallback(cfg.Watch.Events, "all"))
	cfg.Watch.Recursive = getBoolConfigValue(*recursive, "PATHWATCH_RECURSIVE", cfg.Watch.Recursive)
	cfg.Watch.AutoAdd = getBoolConfigValue(*autoAdd, "PATHWATCH_AUTO_ADD", cfg.Watch.AutoAdd)
	cfg.Watch.Glob = getBoolConfigValue(*globFlag, "PATHWATCH_GLOB", cfg.Watch.Glob)
	if v := getConfigValue(*exclude, "PATHWATCH_EXCLUDE", ""); v != "" {
		cfg.Watch.Exclude = splitList(v)
	}
	if v := getConfigValue(*excludeRe, "PATHWATCH_EXCLUDE_RE", ""); v != "" {
		cfg.Watch.ExcludeRe = splitList(v)
	}

	cfg.Notify.Coalesce = getBoolConfigValue(*coalesce, "PATHWATCH_COALESCE", cfg.Notify.Coalesce)
	var err error
	if cfg.Notify.ReadFrequency, err = getDurationConfigValue(*readFrequency, "PATHWATCH_READ_FREQUENCY", cfg.Notify.ReadFrequency); err != nil {
		return nil, err
	}
	cfg.Notify.Threshold = getIntConfigValue(*threshold, "PATHWATCH_THRESHOLD", cfg.Notify.Threshold)
	def := cfg.Notify.Timeout
	if def == 0 {
		def = -1
	}
	if cfg.Notify.Timeout, err = getDurationConfigValue(*timeout, "PATHWATCH_TIMEOUT", def); err != nil {
		return nil, err
	}

	cfg.Logger.Level = getConfigValue(*logLevel, "PATHWATCH_LOG_LEVEL", fallback(cfg.Logger.Level, "info"))
	cfg.Logger.Format = getConfigValue(*logFormat, "PATHWATCH_LOG_FORMAT", fallback(cfg.Logger.Format, "text"))

	cfg.Output.Raw = getBoolConfigValue(*rawOutput, "PATHWATCH_RAW", cfg.Output.Raw)

	cfg.Stats.Enabled = getBoolConfigValue(*statsEnabled, "PATHWATCH_STATS", cfg.Stats.Enabled)
	cfg.Stats.DumpPath = getConfigValue(*statsDump, "PATHWATCH_STATS_DUMP", cfg.Stats.DumpPath)

	if paths := fs.Args(); len(paths) > 0 {
		cfg.Watch.Paths = paths
	}
	for i, p := range cfg.Watch.Paths {
		expanded, err := expandPath(p)
		if err != nil {
			return nil, err
		}
		cfg.Watch.Paths[i] = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if err := validation.New().Validate(c); err != nil {
		return err
	}
	if _, err := c.Mask(); err != nil {
		return err
	}
	if _, err := c.ExcludeFilter(); err != nil {
		return err
	}
	return nil
}

// Mask parses the configured event list.
func (c *Config) Mask() (inotify.Mask, error) {
	return inotify.ParseMask(c.Watch.Events)
}

// ExcludeFilter compiles the configured exclusion patterns.
func (c *Config) ExcludeFilter() (resolve.Filter, error) {
	globs, err := resolve.NewGlobFilter(c.Watch.Exclude)
	if err != nil {
		return nil, err
	}
	res, err := resolve.NewRegexpFilter(c.Watch.ExcludeRe)
	if err != nil {
		return nil, err
	}
	return resolve.Any(globs, res), nil
}

func loadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// getConfigValue returns the first non-empty value among flag, environment
// variable and default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationConfigValue(flagValue, envKey string, defaultValue time.Duration) (time.Duration, error) {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return parsed, nil
}

func fallback(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandPath expands ~ and makes the path absolute. Glob metacharacters
// are left untouched.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}
	return filepath.Clean(path), nil
}
