// Package config loads and validates the portalkeeper configuration file.
//
// The file is YAML. Durations are written as Go duration strings ("90s",
// "5m"). Every field has a default, so a file only needs the portal-specific
// locators and URLs:
//
//	portal:
//	  entry_url: https://portal.example.com/login
//	  home_url: https://portal.example.com/home
//	login:
//	  identity_selector: "#username"
//	  secret_selector: "#password"
//	  marker_selector: "#menu-title"
//	download:
//	  container: ["#reports", "text=Reports"]
//	  back: ["#back", "text=Back"]
//	  label_selector: "text=%s"
//	  download_selector: "#export-csv"
//	  catalog:
//	    - label: Backlog Purchases
//	      file_name: Backlog Purchases.csv
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// Portal endpoints
	Portal PortalConfig `yaml:"portal" json:"portal"`

	// Login sequence locators and timings
	Login LoginConfig `yaml:"login" json:"login"`

	// Background keep-alive navigation
	KeepAlive KeepAliveConfig `yaml:"keep_alive" json:"keep_alive"`

	// Batch download workflow
	Download DownloadConfig `yaml:"download" json:"download"`

	// Browser launch options
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Where credentials are looked up
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Path the config was loaded from, empty for defaults
	FilePath string `yaml:"-" json:"-"`
}

// PortalConfig holds the portal URLs.
type PortalConfig struct {
	EntryURL string `yaml:"entry_url" json:"entry_url"`
	HomeURL  string `yaml:"home_url" json:"home_url"`
}

// LoginConfig describes the authentication sequence.
type LoginConfig struct {
	IdentitySelector string `yaml:"identity_selector" json:"identity_selector"`
	SecretSelector   string `yaml:"secret_selector" json:"secret_selector"`
	MarkerSelector   string `yaml:"marker_selector" json:"marker_selector"`

	// MarkerText is the text the marker element shows once logged in
	MarkerText string `yaml:"marker_text" json:"marker_text"`

	ElementTimeout time.Duration `yaml:"element_timeout" json:"element_timeout"`
	IdentitySettle time.Duration `yaml:"identity_settle" json:"identity_settle"`
	SecretSettle   time.Duration `yaml:"secret_settle" json:"secret_settle"`
	VerifyTimeout  time.Duration `yaml:"verify_timeout" json:"verify_timeout"`

	// RequireConfirmation suspends the login until the second factor is confirmed
	RequireConfirmation bool          `yaml:"require_confirmation" json:"require_confirmation"`
	ConfirmTimeout      time.Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
}

// KeepAliveConfig describes the periodic navigation that keeps sessions warm.
type KeepAliveConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	PrimaryURL       string        `yaml:"primary_url" json:"primary_url"`
	SecondaryURL     string        `yaml:"secondary_url" json:"secondary_url"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	FallbackInterval time.Duration `yaml:"fallback_interval" json:"fallback_interval"`
	StepDelay        time.Duration `yaml:"step_delay" json:"step_delay"`
}

// CatalogEntry pairs a display label in the portal with the file name the
// download is saved under.
type CatalogEntry struct {
	Label    string `yaml:"label" json:"label"`
	FileName string `yaml:"file_name" json:"file_name"`
}

// DownloadConfig describes the batch download workflow.
type DownloadConfig struct {
	// Dir is the default target directory
	Dir string `yaml:"dir" json:"dir"`

	// Container opens the screen that lists the catalog, primary locator first
	Container []string `yaml:"container" json:"container"`

	// Back returns from an entry to the list, primary locator first
	Back []string `yaml:"back" json:"back"`

	// LabelSelector is a selector template; %s is replaced by the entry label
	LabelSelector    string `yaml:"label_selector" json:"label_selector"`
	DownloadSelector string `yaml:"download_selector" json:"download_selector"`

	// StuckSelector and StuckText identify the dialog dismissed during recovery
	StuckSelector string `yaml:"stuck_selector" json:"stuck_selector"`
	StuckText     string `yaml:"stuck_text" json:"stuck_text"`

	LocatorTimeout time.Duration `yaml:"locator_timeout" json:"locator_timeout"`
	FileTimeout    time.Duration `yaml:"file_timeout" json:"file_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval" json:"poll_interval"`
	RecoveryDelay  time.Duration `yaml:"recovery_delay" json:"recovery_delay"`

	// MaxAttempts bounds the tries per entry
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// FailFastOnExhausted aborts the run when an entry runs out of attempts
	FailFastOnExhausted bool `yaml:"fail_fast_on_exhausted" json:"fail_fast_on_exhausted"`

	Catalog []CatalogEntry `yaml:"catalog" json:"catalog"`
}

// BrowserConfig holds launch options.
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" json:"headless"`
	Install        bool          `yaml:"install" json:"install"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
}

// CredentialsConfig selects the credential sources, tried in order.
type CredentialsConfig struct {
	// Sources lists provider names: env, keyring, file
	Sources []string `yaml:"sources" json:"sources"`

	// File is the YAML credentials file used by the file source
	File string `yaml:"file" json:"file"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`

	// Dir overrides the log directory
	Dir string `yaml:"dir" json:"dir"`

	// Console enables human-readable output on stderr
	Console bool `yaml:"console" json:"console"`
}

// Credential source names
const (
	SourceEnv     = "env"
	SourceKeyring = "keyring"
	SourceFile    = "file"
)

// DefaultConfig returns a configuration with every timing and policy default
// filled in. Portal-specific URLs and locators are left empty.
func DefaultConfig() *Config {
	return &Config{
		Login: LoginConfig{
			MarkerText:          "INICIO",
			ElementTimeout:      15 * time.Second,
			IdentitySettle:      4 * time.Second,
			SecretSettle:        5 * time.Second,
			VerifyTimeout:       300 * time.Second,
			RequireConfirmation: true,
			ConfirmTimeout:      10 * time.Minute,
		},
		KeepAlive: KeepAliveConfig{
			Enabled:          true,
			Interval:         90 * time.Second,
			FallbackInterval: 60 * time.Second,
			StepDelay:        2 * time.Second,
		},
		Download: DownloadConfig{
			Dir:            "./downloads",
			LabelSelector:  "text=%s",
			LocatorTimeout: 5 * time.Second,
			FileTimeout:    60 * time.Second,
			PollInterval:   500 * time.Millisecond,
			RecoveryDelay:  2 * time.Second,
			MaxAttempts:    5,
			RetryDelay:     3 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:       false,
			Install:        true,
			Timeout:        30 * time.Second,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
		Credentials: CredentialsConfig{
			Sources: []string{SourceEnv, SourceKeyring},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads the YAML file at path on top of DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.FilePath = path
	return cfg, nil
}

// Parse decodes YAML data on top of DefaultConfig. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Portal.EntryURL == "" {
		fail("portal.entry_url is required")
	}

	if c.Login.IdentitySelector == "" || c.Login.SecretSelector == "" || c.Login.MarkerSelector == "" {
		fail("login.identity_selector, login.secret_selector and login.marker_selector are required")
	}
	if c.Login.MarkerText == "" {
		fail("login.marker_text is required")
	}
	positive(fail, "login.element_timeout", c.Login.ElementTimeout)
	positive(fail, "login.verify_timeout", c.Login.VerifyTimeout)
	notNegative(fail, "login.identity_settle", c.Login.IdentitySettle)
	notNegative(fail, "login.secret_settle", c.Login.SecretSettle)
	if c.Login.RequireConfirmation {
		positive(fail, "login.confirm_timeout", c.Login.ConfirmTimeout)
	}

	if c.KeepAlive.Enabled {
		if c.KeepAlive.PrimaryURL == "" || c.KeepAlive.SecondaryURL == "" {
			fail("keep_alive.primary_url and keep_alive.secondary_url are required when keep_alive is enabled")
		}
		positive(fail, "keep_alive.interval", c.KeepAlive.Interval)
		positive(fail, "keep_alive.fallback_interval", c.KeepAlive.FallbackInterval)
		notNegative(fail, "keep_alive.step_delay", c.KeepAlive.StepDelay)
	}

	c.validateDownload(fail)

	if c.Browser.Timeout < 0 {
		fail("browser.timeout cannot be negative")
	}

	for _, src := range c.Credentials.Sources {
		switch src {
		case SourceEnv, SourceKeyring:
		case SourceFile:
			if c.Credentials.File == "" {
				fail("credentials.file is required when the file source is enabled")
			}
		default:
			fail("invalid credentials source: %s (must be 'env', 'keyring' or 'file')", src)
		}
	}
	if len(c.Credentials.Sources) == 0 {
		fail("credentials.sources must name at least one source")
	}

	// Set default level if not specified
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		fail("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	return errors.Join(errs...)
}

func (c *Config) validateDownload(fail func(string, ...interface{})) {
	d := c.Download

	if d.Dir == "" {
		fail("download.dir is required")
	}
	if len(d.Container) == 0 {
		fail("download.container needs at least one locator")
	}
	if len(d.Back) == 0 {
		fail("download.back needs at least one locator")
	}
	if strings.Count(d.LabelSelector, "%s") != 1 {
		fail("download.label_selector must contain exactly one %%s placeholder")
	}
	if d.DownloadSelector == "" {
		fail("download.download_selector is required")
	}
	if d.StuckSelector != "" && d.StuckText == "" {
		fail("download.stuck_text is required when download.stuck_selector is set")
	}
	positive(fail, "download.locator_timeout", d.LocatorTimeout)
	positive(fail, "download.file_timeout", d.FileTimeout)
	positive(fail, "download.poll_interval", d.PollInterval)
	notNegative(fail, "download.recovery_delay", d.RecoveryDelay)
	notNegative(fail, "download.retry_delay", d.RetryDelay)
	if d.MaxAttempts < 1 {
		fail("download.max_attempts must be at least 1")
	}

	seen := make(map[string]bool, len(d.Catalog))
	for i, e := range d.Catalog {
		if e.Label == "" || e.FileName == "" {
			fail("download.catalog[%d]: label and file_name are required", i)
			continue
		}
		if e.FileName != filepath.Base(e.FileName) || e.FileName == "." || e.FileName == ".." {
			fail("download.catalog[%d]: file_name %q must be a bare file name", i, e.FileName)
		}
		if seen[e.FileName] {
			fail("download.catalog[%d]: duplicate file_name %q", i, e.FileName)
		}
		seen[e.FileName] = true
	}
}

func positive(fail func(string, ...interface{}), key string, d time.Duration) {
	if d <= 0 {
		fail("%s must be positive", key)
	}
}

func notNegative(fail func(string, ...interface{}), key string, d time.Duration) {
	if d < 0 {
		fail("%s cannot be negative", key)
	}
}
