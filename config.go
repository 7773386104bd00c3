package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// the structure of the config.json file
// where config info is stored
type configData struct {
	Port                 int64   `mapstructure:"port"`
	APIKey               string  `mapstructure:"api_key"`
	APIBaseURL           string  `mapstructure:"api_base_url"`
	ImageBaseURL         string  `mapstructure:"image_base_url"`
	Language             string  `mapstructure:"language"`
	APIRequestsPerSecond float64 `mapstructure:"api_requests_per_second"`
	QueueSize            int     `mapstructure:"queue_size"`
	RequestTimeout       int     `mapstructure:"request_timeout"`
	MaxImageBytes        int64   `mapstructure:"max_image_bytes"`
	CellWidth            float64 `mapstructure:"cell_width"`
	CellHeight           float64 `mapstructure:"cell_height"`
	Scale                float64 `mapstructure:"scale"`
	VisibleRows          int     `mapstructure:"visible_rows"`
	PrefetchAhead        int     `mapstructure:"prefetch_ahead"`
	ThumbnailCacheSize   int     `mapstructure:"thumbnail_cache_size"`
	UserAgent            string  `mapstructure:"user_agent"`
}

var configDefaults = map[string]interface{}{
	"port":                    8080,
	"api_key":                 "",
	"api_base_url":            "https://api.themoviedb.org/3",
	"image_base_url":          "https://image.tmdb.org/t/p/",
	"language":                "en-US",
	"api_requests_per_second": 4.0,
	"queue_size":              64,
	"request_timeout":         15,
	"max_image_bytes":         10 << 20,
	"cell_width":              300.0,
	"cell_height":             170.0,
	"scale":                   2.0,
	"visible_rows":            20,
	"prefetch_ahead":          10,
	"thumbnail_cache_size":    256,
	"user_agent":              "nowplaying/1.0",
}

// loadConfig reads a JSON config file (optional when path is empty)
// with NOWPLAYING_* environment variables taking precedence.
func loadConfig(path string) (configData, error) {
	v := viper.New()
	for k, d := range configDefaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix("nowplaying")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return configData{}, err
		}
	}
	var c configData
	if err := v.Unmarshal(&c); err != nil {
		return configData{}, err
	}
	return c, nil
}

func (c configData) MyConfig() siteConfig {
	port := c.Port
	if port < 1 {
		port = 8080
	}
	queueSize := c.QueueSize
	if queueSize < 1 {
		queueSize = 64
	}
	timeout := c.RequestTimeout
	if timeout < 1 {
		timeout = 15
	}
	maxBytes := c.MaxImageBytes
	if maxBytes < 1 {
		maxBytes = 10 << 20
	}
	cellWidth, cellHeight := c.CellWidth, c.CellHeight
	if cellWidth <= 0 || cellHeight <= 0 {
		cellWidth, cellHeight = 300, 170
	}
	scale := c.Scale
	if scale <= 0 {
		scale = 1
	}
	visible := c.VisibleRows
	if visible < 1 {
		visible = 20
	}
	ahead := c.PrefetchAhead
	if ahead < 0 {
		ahead = 0
	}
	cacheSize := c.ThumbnailCacheSize
	if cacheSize < 1 {
		cacheSize = 256
	}
	return siteConfig{
		Port:                 port,
		APIKey:               c.APIKey,
		APIBaseURL:           c.APIBaseURL,
		ImageBaseURL:         c.ImageBaseURL,
		Language:             c.Language,
		APIRequestsPerSecond: c.APIRequestsPerSecond,
		QueueSize:            queueSize,
		RequestTimeout:       time.Duration(timeout) * time.Second,
		MaxImageBytes:        maxBytes,
		CellWidth:            cellWidth,
		CellHeight:           cellHeight,
		Scale:                scale,
		VisibleRows:          visible,
		PrefetchAhead:        ahead,
		ThumbnailCacheSize:   cacheSize,
		UserAgent:            c.UserAgent,
	}
}

// configData with defaults filled in and units applied
type siteConfig struct {
	Port                 int64
	APIKey               string
	APIBaseURL           string
	ImageBaseURL         string
	Language             string
	APIRequestsPerSecond float64
	QueueSize            int
	RequestTimeout       time.Duration
	MaxImageBytes        int64
	CellWidth            float64
	CellHeight           float64
	Scale                float64
	VisibleRows          int
	PrefetchAhead        int
	ThumbnailCacheSize   int
	UserAgent            string
}

func (s siteConfig) KeyConfigured() bool {
	return s.APIKey != ""
}
