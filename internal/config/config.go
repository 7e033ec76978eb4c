package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	GeoIP   GeoIPConfig   `yaml:"geoip" mapstructure:"geoip"`
	Map     MapConfig     `yaml:"map" mapstructure:"map"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// DatasetConfig configures the flood-hazard polygon dataset.
type DatasetConfig struct {
	Path                string `yaml:"path" mapstructure:"path"`
	URL                 string `yaml:"url" mapstructure:"url"`
	Format              string `yaml:"format" mapstructure:"format"`
	LabelField          string `yaml:"label_field" mapstructure:"label_field"`
	DownloadTimeoutSecs int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// GeoIPConfig configures the IP geolocation provider.
type GeoIPConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// MapConfig configures locator map rendering and the rendered-map cache.
type MapConfig struct {
	Dir             string  `yaml:"dir" mapstructure:"dir"`
	Width           int     `yaml:"width" mapstructure:"width"`
	Height          int     `yaml:"height" mapstructure:"height"`
	SpanDegrees     float64 `yaml:"span_degrees" mapstructure:"span_degrees"`
	CacheSize       int     `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FLOODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("dataset.path", "data/flood_hazard.gpkg")
	v.SetDefault("dataset.url", "")
	v.SetDefault("dataset.format", "")
	v.SetDefault("dataset.label_field", "SOIL_FLOOD_HAZARD")
	v.SetDefault("dataset.download_timeout_secs", 300)
	v.SetDefault("geoip.base_url", "https://get.geojs.io")
	v.SetDefault("geoip.timeout_secs", 5)
	v.SetDefault("geoip.rate_limit", 10)
	v.SetDefault("map.dir", "data/maps")
	v.SetDefault("map.width", 640)
	v.SetDefault("map.height", 480)
	v.SetDefault("map.span_degrees", 0.5)
	v.SetDefault("map.cache_size", 32)
	v.SetDefault("map.cache_ttl_minutes", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
