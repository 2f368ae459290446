package annotation

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lewtec/scriptorium/internal/geometry"
)

type Config struct {
	Meta struct {
		Description string `yaml:"description"`
	} `yaml:"meta"`
	Server  ConfigServer  `yaml:"server"`
	Backend ConfigBackend `yaml:"backend"`
	Viewer  ConfigViewer  `yaml:"viewer"`
	Cache   ConfigCache   `yaml:"cache"`
	// Classifications are registered in the database by PrepareDatabase
	Classifications []string `yaml:"classifications"`
}

type ConfigServer struct {
	Addr     string `yaml:"addr"`
	Images   string `yaml:"images"`
	Database string `yaml:"database"`
}

type ConfigBackend struct {
	URL               string        `yaml:"url"`
	IIIF              string        `yaml:"iiif"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type ConfigViewer struct {
	FallbackHeight int `yaml:"fallback_height"`
	// Classification and Hand are assigned to new annotations; 0 means none
	Classification int64 `yaml:"classification"`
	Hand           int64 `yaml:"hand"`
}

type ConfigCache struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

const (
	CacheSQLite = "sqlite"
	CacheFiles  = "files"
	CacheMemory = "memory"
)

func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	ret := &Config{
		Server: ConfigServer{
			Addr:     ":8080",
			Images:   "./images",
			Database: "annotations.db",
		},
		Backend: ConfigBackend{
			URL:               "http://localhost:8080",
			IIIF:              "http://localhost:8080/iiif",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Viewer: ConfigViewer{
			FallbackHeight: geometry.DefaultImageHeight,
		},
		Cache: ConfigCache{
			Driver: CacheSQLite,
			Path:   filepath.Join(home, ".scriptorium"),
		},
	}
	return ret
}

func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	// relative paths are relative to the config file
	dir := filepath.Dir(filename)
	for _, p := range []*string{&config.Server.Images, &config.Server.Database, &config.Cache.Path} {
		if *p != "" && *p != ":memory:" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return config, nil
}

// ParseConfig reads a YAML document over the defaults and validates it.
func ParseConfig(data []byte) (*Config, error) {
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, err
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Config) Validate() error {
	for name, raw := range map[string]string{"backend.url": c.Backend.URL, "backend.iiif": c.Backend.IIIF} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s: %q is not an http(s) url", name, raw)
		}
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return fmt.Errorf("backend.requests_per_second can't be negative")
	}
	if c.Viewer.FallbackHeight <= 0 {
		return fmt.Errorf("viewer.fallback_height must be positive")
	}
	if c.Viewer.Classification < 0 || c.Viewer.Hand < 0 {
		return fmt.Errorf("viewer.classification and viewer.hand can't be negative")
	}
	switch c.Cache.Driver {
	case CacheSQLite, CacheFiles:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %s driver", c.Cache.Driver)
		}
	case CacheMemory:
	default:
		return fmt.Errorf("cache.driver %q is not one of sqlite, files, memory", c.Cache.Driver)
	}
	for i, name := range c.Classifications {
		if name == "" {
			return fmt.Errorf("classification %d has an empty name", i)
		}
	}
	return nil
}

// InfoURL is the IIIF info.json of an image.
func (c *Config) InfoURL(imageID string) string {
	return fmt.Sprintf("%s/%s/info.json", c.Backend.IIIF, url.PathEscape(imageID))
}

func optionalID(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// NewClassification returns the classification assigned to new annotations.
func (c *Config) NewClassification() *int64 { return optionalID(c.Viewer.Classification) }

// NewHand returns the hand assigned to new annotations.
func (c *Config) NewHand() *int64 { return optionalID(c.Viewer.Hand) }

const SampleConfig = `meta:
  description: |
    Transcription of the manuscript collection.

server:
  # dev backend listen address, image folder (flat) and database
  addr: ":8080"
  images: ./images
  database: annotations.db

backend:
  url: http://localhost:8080
  iiif: http://localhost:8080/iiif
  timeout: 10s
  requests_per_second: 10
  burst: 20

viewer:
  # image height used when info.json can't be fetched
  fallback_height: 3000
  classification: 0
  hand: 0

cache:
  # sqlite, files or memory
  driver: sqlite
  path: ./.scriptorium

classifications:
  - initial
  - marginalia
  - rubric
`
