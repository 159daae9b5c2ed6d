package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the leadex pipeline configuration.
type Config struct {
	Scraper  ScraperConfig  `yaml:"scraper"`
	Search   SearchConfig   `yaml:"search"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Classify ClassifyConfig `yaml:"classify"`
	Export   ExportConfig   `yaml:"export"`
	Storage  StorageConfig  `yaml:"storage"`
	Status   StatusConfig   `yaml:"status"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// ScraperConfig holds places API client settings.
type ScraperConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	MaxPagesPerQuery  int     `yaml:"max_pages_per_query"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	JitterMaxMs       int     `yaml:"jitter_max_ms"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// SearchConfig is the scrape plan: which queries run around which cities.
type SearchConfig struct {
	Countries []CountryPlan `yaml:"countries"`
}

// CountryPlan groups the localized queries and target cities of one market.
type CountryPlan struct {
	Name      string     `yaml:"name"`
	Queries   []string   `yaml:"queries"`
	Locations []Location `yaml:"locations"`
}

// Location is one search center with its bias radius.
type Location struct {
	Name     string  `yaml:"name"`
	Lat      float64 `yaml:"lat"`
	Lng      float64 `yaml:"lng"`
	RadiusKm float64 `yaml:"radius_km"`
}

// DedupeConfig holds the entity-resolution tuning surface. Semantic
// validation happens in the engine constructor; only YAML-shape defaults
// live here.
type DedupeConfig struct {
	NameWeight      float64 `yaml:"name_weight"`
	PhoneWeight     float64 `yaml:"phone_weight"`
	WebsiteWeight   float64 `yaml:"website_weight"`
	DistanceWeight  float64 `yaml:"distance_weight"`
	Threshold       float64 `yaml:"decision_threshold"`
	BlockPrefixLen  int     `yaml:"block_prefix_len"`
	GeoRadiusMeters float64 `yaml:"geo_radius_meters"`
	Workers         int     `yaml:"workers"`
}

// ClassifyConfig holds LLM prioritisation settings.
type ClassifyConfig struct {
	Enabled        bool    `yaml:"enabled"`
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	RequestsPerMin float64 `yaml:"requests_per_min"`
	MinPriority    int     `yaml:"min_priority"`
	SaveEvery      int     `yaml:"save_every"`
}

// ExportConfig holds output settings.
type ExportConfig struct {
	Dir     string `yaml:"dir"`
	XLSX    bool   `yaml:"xlsx"`
	Parquet bool   `yaml:"parquet"`
	TopN    int    `yaml:"top_n"`
}

// StorageConfig holds the optional Redis resume/seen store settings.
// Empty addrs disable storage; the pipeline then runs stateless.
type StorageConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	SeenTTLHours     int      `yaml:"seen_ttl_hours"`
}

// StatusConfig holds the optional status/metrics HTTP listener settings.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Scraper.BaseURL == "" {
		c.Scraper.BaseURL = "https://places.googleapis.com/v1/places:searchText"
	}
	if c.Scraper.MaxPagesPerQuery <= 0 {
		c.Scraper.MaxPagesPerQuery = 3
	}
	if c.Scraper.RequestsPerSecond <= 0 {
		c.Scraper.RequestsPerSecond = 1
	}
	if c.Scraper.JitterMaxMs < 0 {
		c.Scraper.JitterMaxMs = 0
	}
	if c.Scraper.TimeoutSec <= 0 {
		c.Scraper.TimeoutSec = 10
	}
	if c.Dedupe.NameWeight == 0 && c.Dedupe.PhoneWeight == 0 &&
		c.Dedupe.WebsiteWeight == 0 && c.Dedupe.DistanceWeight == 0 {
		c.Dedupe.NameWeight = 0.45
		c.Dedupe.PhoneWeight = 0.35
		c.Dedupe.WebsiteWeight = 0.10
		c.Dedupe.DistanceWeight = 0.10
	}
	if c.Dedupe.Threshold == 0 {
		c.Dedupe.Threshold = 85
	}
	if c.Dedupe.BlockPrefixLen <= 0 {
		c.Dedupe.BlockPrefixLen = 5
	}
	if c.Dedupe.GeoRadiusMeters <= 0 {
		c.Dedupe.GeoRadiusMeters = 2000
	}
	if c.Dedupe.Workers <= 0 {
		c.Dedupe.Workers = 1
	}
	if c.Classify.Model == "" {
		c.Classify.Model = "gpt-4o-mini"
	}
	if c.Classify.Temperature == 0 {
		c.Classify.Temperature = 0.2
	}
	if c.Classify.RequestsPerMin <= 0 {
		c.Classify.RequestsPerMin = 3
	}
	if c.Classify.MinPriority <= 0 {
		c.Classify.MinPriority = 7
	}
	if c.Classify.SaveEvery <= 0 {
		c.Classify.SaveEvery = 10
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "out"
	}
	if c.Export.TopN <= 0 {
		c.Export.TopN = 5
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "leadex:"
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Storage.SeenTTLHours <= 0 {
		c.Storage.SeenTTLHours = 7 * 24
	}
	if c.Status.Port <= 0 {
		c.Status.Port = 8710
	}
}

// Validate checks the configuration for correctness. Engine-level semantic
// validation of the dedupe weights happens again in dedupe.New; this is the
// startup gate.
func (c *Config) Validate() error {
	if c.Scraper.APIKey == "" {
		return fmt.Errorf("scraper.api_key is required")
	}
	if len(c.Search.Countries) == 0 {
		return fmt.Errorf("search.countries is required")
	}
	for _, country := range c.Search.Countries {
		if country.Name == "" {
			return fmt.Errorf("search country without a name")
		}
		if len(country.Queries) == 0 {
			return fmt.Errorf("search.countries.%s has no queries", country.Name)
		}
		for _, loc := range country.Locations {
			if loc.RadiusKm <= 0 {
				return fmt.Errorf("search location %s/%s needs a positive radius_km", country.Name, loc.Name)
			}
		}
	}
	if c.Dedupe.Threshold < 0 || c.Dedupe.Threshold > 100 {
		return fmt.Errorf("dedupe.decision_threshold must be within [0,100], got %v", c.Dedupe.Threshold)
	}
	if c.Dedupe.NameWeight < 0 || c.Dedupe.PhoneWeight < 0 ||
		c.Dedupe.WebsiteWeight < 0 || c.Dedupe.DistanceWeight < 0 {
		return fmt.Errorf("dedupe weights must be non-negative")
	}
	if c.Classify.Enabled && c.Classify.APIKey == "" {
		return fmt.Errorf("classify.api_key is required when classify.enabled")
	}
	if c.Classify.MinPriority > 10 {
		return fmt.Errorf("classify.min_priority must be within [1,10], got %d", c.Classify.MinPriority)
	}
	if c.Status.Enabled && (c.Status.Port <= 0 || c.Status.Port > 65535) {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
