package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tracktide/tracktide/internal/retry"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"TT_ENV" default:"development"`

	HTTPPort    int           `envconfig:"TT_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"TT_HTTP_TIMEOUT" default:"15s"`

	Quality             string `envconfig:"TT_QUALITY" default:"standard"`
	ConcurrentDownloads int    `envconfig:"TT_CONCURRENT_DOWNLOADS" default:"3"`

	MaxRetries         int           `envconfig:"TT_MAX_RETRIES" default:"3"`
	RetryInitialDelay  time.Duration `envconfig:"TT_RETRY_INITIAL_DELAY" default:"1s"`
	RetryMaxDelay      time.Duration `envconfig:"TT_RETRY_MAX_DELAY" default:"60s"`
	RetryBackoffFactor float64       `envconfig:"TT_RETRY_BACKOFF_FACTOR" default:"2.0"`

	DownloadDir string `envconfig:"TT_DOWNLOAD_DIR" default:"./music"`
	TempDir     string `envconfig:"TT_TEMP_DIR" default:"./tmp"`
	StateFile   string `envconfig:"TT_STATE_FILE" default:"./state.json"`

	CatalogBaseURL string `envconfig:"TT_CATALOG_BASE_URL" default:"https://api.tracktide.dev"`
	SessionToken   string `envconfig:"TT_SESSION_TOKEN"`
	StreamSecret   string `envconfig:"TT_STREAM_SECRET"`

	InactivityTimeout time.Duration `envconfig:"TT_INACTIVITY_TIMEOUT" default:"30s"`

	ProxyType         string `envconfig:"TT_PROXY_TYPE"`
	ProxyHost         string `envconfig:"TT_PROXY_HOST"`
	ProxyPort         int    `envconfig:"TT_PROXY_PORT"`
	ProxyUser         string `envconfig:"TT_PROXY_USER"`
	ProxyPassword     string `envconfig:"TT_PROXY_PASSWORD"`
	ProxyForAPI       bool   `envconfig:"TT_PROXY_FOR_API" default:"true"`
	ProxyForDownloads bool   `envconfig:"TT_PROXY_FOR_DOWNLOADS" default:"true"`

	ShutdownTimeout time.Duration `envconfig:"TT_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"TT_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"TT_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.Quality {
	case "low", "standard", "lossless":
	default:
		return fmt.Errorf("invalid quality %q: must be low, standard or lossless", c.Quality)
	}

	if c.ConcurrentDownloads < 1 || c.ConcurrentDownloads > 10 {
		return fmt.Errorf("concurrent downloads out of range [1, 10]: %d", c.ConcurrentDownloads)
	}

	if err := c.RetrySettings().Validate(); err != nil {
		return fmt.Errorf("invalid retry settings: %w", err)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.TempDir == "" {
		return fmt.Errorf("temp directory cannot be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}

	if c.CatalogBaseURL == "" {
		return fmt.Errorf("catalog base URL cannot be empty")
	}

	if c.ProxyType != "" {
		switch c.ProxyType {
		case "http", "socks5":
		default:
			return fmt.Errorf("invalid proxy type %q: must be http or socks5", c.ProxyType)
		}
		if c.ProxyHost == "" {
			return fmt.Errorf("proxy host cannot be empty when proxy type is set")
		}
		if c.ProxyPort <= 0 || c.ProxyPort > 65535 {
			return fmt.Errorf("invalid proxy port: %d", c.ProxyPort)
		}
	}

	return nil
}

// RetrySettings returns the retry parameters as a policy snapshot.
func (c *Config) RetrySettings() retry.Settings {
	return retry.Settings{
		MaxRetries:    c.MaxRetries,
		InitialDelay:  c.RetryInitialDelay,
		MaxDelay:      c.RetryMaxDelay,
		BackoffFactor: c.RetryBackoffFactor,
	}
}

// ProxyURL builds the proxy URL from the proxy settings, or nil when no proxy
// is configured.
func (c *Config) ProxyURL() *url.URL {
	if c.ProxyType == "" || c.ProxyHost == "" {
		return nil
	}
	u := &url.URL{
		Scheme: c.ProxyType,
		Host:   fmt.Sprintf("%s:%d", c.ProxyHost, c.ProxyPort),
	}
	if c.ProxyUser != "" {
		if c.ProxyPassword != "" {
			u.User = url.UserPassword(c.ProxyUser, c.ProxyPassword)
		} else {
			u.User = url.User(c.ProxyUser)
		}
	}
	return u
}
