package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Upstream UpstreamConfig
	Listing  ListingConfig
	Map      MapConfig
	Session  SessionConfig
	GeoIP    GeoIPConfig
	Log      LogConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CacheConfig struct {
	NetworksTTL      time.Duration
	NetworkDetailTTL time.Duration
	// MaxStale - окно, в течение которого устаревшая запись отдаётся с фоновым обновлением
	MaxStale       time.Duration
	LocalCacheSize int
	KeyPrefix      string
}

type UpstreamConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	UserAgent      string
}

type ListingConfig struct {
	PageSize              int
	StationPageSize       int
	EnrichmentConcurrency int
	URLSyncDebounce       time.Duration
}

type MapConfig struct {
	DefaultLon     float64
	DefaultLat     float64
	DefaultZoom    float64
	DetailZoom     float64
	LocateZoom     float64
	CoordTolerance float64
	ZoomTolerance  float64
}

type SessionConfig struct {
	TTL        time.Duration
	MaxEntries int
	// SweepInterval - как часто размонтировать сессии с истёкшим TTL
	SweepInterval time.Duration
}

type GeoIPConfig struct {
	DBPath string
}

type LogConfig struct {
	Level string
}

type WorkerConfig struct {
	Enabled         bool
	RefreshInterval time.Duration
}

func setDefaults() {
	viper.SetDefault("API_HOST", "0.0.0.0")
	viper.SetDefault("API_PORT", 8080)
	viper.SetDefault("API_ENV", "development")

	viper.SetDefault("REDIS_ENABLED", false)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)

	viper.SetDefault("NETWORKS_CACHE_TTL", 3600)
	viper.SetDefault("NETWORK_DETAIL_CACHE_TTL", 600)
	viper.SetDefault("LOCAL_CACHE_SIZE", 2048)
	viper.SetDefault("CACHE_KEY_PREFIX", "cyclemap")

	viper.SetDefault("UPSTREAM_BASE_URL", "https://api.citybik.es/v2")
	viper.SetDefault("UPSTREAM_REQUEST_TIMEOUT", 10)
	viper.SetDefault("UPSTREAM_USER_AGENT", "cyclemap/1.0")

	viper.SetDefault("LISTING_PAGE_SIZE", 6)
	viper.SetDefault("STATION_PAGE_SIZE", 12)
	viper.SetDefault("ENRICHMENT_CONCURRENCY", 6)
	viper.SetDefault("URL_SYNC_DEBOUNCE_MS", 300)

	viper.SetDefault("MAP_DEFAULT_LON", 0.0)
	viper.SetDefault("MAP_DEFAULT_LAT", 20.0)
	viper.SetDefault("MAP_DEFAULT_ZOOM", 2.0)
	viper.SetDefault("MAP_DETAIL_ZOOM", 12.0)
	viper.SetDefault("MAP_LOCATE_ZOOM", 14.0)
	viper.SetDefault("MAP_COORD_TOLERANCE", 0.001)
	viper.SetDefault("MAP_ZOOM_TOLERANCE", 0.1)

	viper.SetDefault("SESSION_TTL", 1800)
	viper.SetDefault("SESSION_MAX", 1000)
	viper.SetDefault("SESSION_SWEEP_INTERVAL", 60)

	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("WORKER_ENABLED", false)
	viper.SetDefault("WORKER_REFRESH_INTERVAL", 900)
}

func Load() (*Config, error) {
	setDefaults()
	viper.AutomaticEnv()

	// .env опционален: в контейнере всё приходит из окружения
	if _, err := os.Stat(".env"); err == nil {
		viper.SetConfigFile(".env")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("API_HOST"),
			Port: viper.GetInt("API_PORT"),
			Env:  viper.GetString("API_ENV"),
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("REDIS_ENABLED"),
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetInt("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Cache: CacheConfig{
			NetworksTTL:      time.Duration(viper.GetInt("NETWORKS_CACHE_TTL")) * time.Second,
			NetworkDetailTTL: time.Duration(viper.GetInt("NETWORK_DETAIL_CACHE_TTL")) * time.Second,
			MaxStale:         time.Duration(viper.GetInt("CACHE_MAX_STALE")) * time.Second,
			LocalCacheSize:   viper.GetInt("LOCAL_CACHE_SIZE"),
			KeyPrefix:        viper.GetString("CACHE_KEY_PREFIX"),
		},
		Upstream: UpstreamConfig{
			BaseURL:        viper.GetString("UPSTREAM_BASE_URL"),
			RequestTimeout: time.Duration(viper.GetInt("UPSTREAM_REQUEST_TIMEOUT")) * time.Second,
			UserAgent:      viper.GetString("UPSTREAM_USER_AGENT"),
		},
		Listing: ListingConfig{
			PageSize:              viper.GetInt("LISTING_PAGE_SIZE"),
			StationPageSize:       viper.GetInt("STATION_PAGE_SIZE"),
			EnrichmentConcurrency: viper.GetInt("ENRICHMENT_CONCURRENCY"),
			URLSyncDebounce:       time.Duration(viper.GetInt("URL_SYNC_DEBOUNCE_MS")) * time.Millisecond,
		},
		Map: MapConfig{
			DefaultLon:     viper.GetFloat64("MAP_DEFAULT_LON"),
			DefaultLat:     viper.GetFloat64("MAP_DEFAULT_LAT"),
			DefaultZoom:    viper.GetFloat64("MAP_DEFAULT_ZOOM"),
			DetailZoom:     viper.GetFloat64("MAP_DETAIL_ZOOM"),
			LocateZoom:     viper.GetFloat64("MAP_LOCATE_ZOOM"),
			CoordTolerance: viper.GetFloat64("MAP_COORD_TOLERANCE"),
			ZoomTolerance:  viper.GetFloat64("MAP_ZOOM_TOLERANCE"),
		},
		Session: SessionConfig{
			TTL:           time.Duration(viper.GetInt("SESSION_TTL")) * time.Second,
			MaxEntries:    viper.GetInt("SESSION_MAX"),
			SweepInterval: time.Duration(viper.GetInt("SESSION_SWEEP_INTERVAL")) * time.Second,
		},
		GeoIP: GeoIPConfig{
			DBPath: viper.GetString("GEOIP_DB_PATH"),
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
		Worker: WorkerConfig{
			Enabled:         viper.GetBool("WORKER_ENABLED"),
			RefreshInterval: time.Duration(viper.GetInt("WORKER_REFRESH_INTERVAL")) * time.Second,
		},
	}

	// Set default values if not provided
	if cfg.Cache.MaxStale == 0 {
		cfg.Cache.MaxStale = cfg.Cache.NetworksTTL
	}
	if cfg.Listing.PageSize <= 0 {
		cfg.Listing.PageSize = 6
	}
	if cfg.Listing.EnrichmentConcurrency <= 0 {
		cfg.Listing.EnrichmentConcurrency = 1
	}

	return cfg, nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
