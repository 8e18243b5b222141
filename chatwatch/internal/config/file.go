// Package config handles chatwatch configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/widgetwatch/horosafe"
)

// Config is the top-level chatwatch configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Widget   WidgetConfig   `yaml:"widget"`
	Pages    []PageConfig   `yaml:"pages"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	HTTP     HTTPConfig     `yaml:"http"`
	Registry RegistryConfig `yaml:"registry"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// WidgetConfig describes the third-party widget's markup and the timings of
// the bootstrap poller and the inferrer. Selectors are CSS selectors
// evaluated in the page.
type WidgetConfig struct {
	MessagesSelector  string   `yaml:"messages_selector"`
	WindowSelector    string   `yaml:"window_selector"`
	InputSelector     string   `yaml:"input_selector"`
	SendSelector      string   `yaml:"send_selector"`
	MessageSelector   string   `yaml:"message_selector"` // existing bubbles augmented at watch start
	HeaderSelector    string   `yaml:"header_selector"`
	LauncherSelectors []string `yaml:"launcher_selectors"`

	IndicatorID     string      `yaml:"indicator_id"`
	IndicatorMarkup string      `yaml:"indicator_markup"`
	Phone           PhoneConfig `yaml:"phone"`

	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPolls        int           `yaml:"max_polls"`
	HideInterval    time.Duration `yaml:"hide_interval"`
	SafetyTimeout   time.Duration `yaml:"safety_timeout"`
	RequireNonEmpty bool          `yaml:"require_non_empty"`
}

// PhoneConfig is the static call button injected into the widget header.
// It is disabled when Href is empty.
type PhoneConfig struct {
	ID      string `yaml:"id"`
	Href    string `yaml:"href"` // tel:+...
	Label   string `yaml:"label"`
	IconSVG string `yaml:"icon_svg"`
}

// Enabled reports whether the button should be injected.
func (p PhoneConfig) Enabled() bool { return p.Href != "" }

// PageConfig defines a page hosting the widget.
type PageConfig struct {
	ID      string `yaml:"id"`
	URL     string `yaml:"url"`
	Stealth string `yaml:"stealth"` // headless | headful, empty = browser default
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// HTTPConfig enables the status API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RegistryConfig points at an optional SQLite page registry.
type RegistryConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no pages.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// Validate rejects configurations the watcher cannot run.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Pages))
	for i, p := range c.Pages {
		if err := horosafe.ValidatePageURL(p.URL); err != nil {
			return fmt.Errorf("config: pages[%d]: %w", i, err)
		}
		if p.ID != "" {
			if err := horosafe.ValidateIdentifier(p.ID); err != nil {
				return fmt.Errorf("config: pages[%d]: id: %w", i, err)
			}
		}
		if p.ID != "" && seen[p.ID] {
			return fmt.Errorf("config: pages[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}

// ApplyDefaults fills every zero field with its default and sanitises
// operator-supplied markup.
func (c *Config) ApplyDefaults() {
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Registry.PollInterval <= 0 {
		c.Registry.PollInterval = time.Second
	}
	c.Widget.applyDefaults()
}

func (w *WidgetConfig) applyDefaults() {
	if w.MessagesSelector == "" {
		w.MessagesSelector = `[class*="wonderful"][class*="messages"], .wonderful-chat-messages`
	}
	if w.WindowSelector == "" {
		w.WindowSelector = `[class*="wonderful"][class*="window"], .wonderful-chat-window`
	}
	if w.InputSelector == "" {
		w.InputSelector = `[class*="wonderful"][class*="footer"] input, ` +
			`[class*="wonderful"][class*="input"]:not([class*="button"]), ` +
			`.wonderful-chat-footer input`
	}
	if w.SendSelector == "" {
		w.SendSelector = `[class*="wonderful"][class*="send"], ` +
			`[class*="wonderful"][class*="submit"], ` +
			`[class*="wonderful"][class*="footer"] button`
	}
	if w.MessageSelector == "" {
		w.MessageSelector = `[class*="message"], [class*="msg"]`
	}
	if w.HeaderSelector == "" {
		w.HeaderSelector = `[class*="wonderful"][class*="header"], .wonderful-chat-header`
	}
	if len(w.LauncherSelectors) == 0 {
		w.LauncherSelectors = []string{
			`[class*="wonderful"][class*="button"]`,
			`[class*="wonderful"][class*="launcher"]`,
			`[class*="wonderful"][class*="toggle"]`,
			`[class*="wonderful"][class*="fab"]`,
			`.wonderful-chat-button`,
		}
	}
	if w.IndicatorID == "" {
		w.IndicatorID = "chatwatch-typing"
	}
	if w.IndicatorMarkup == "" {
		w.IndicatorMarkup = defaultIndicatorMarkup
	}
	w.IndicatorMarkup = SanitizeMarkup(w.IndicatorMarkup)

	if w.Phone.ID == "" {
		w.Phone.ID = "chatwatch-phone-btn"
	}
	if w.Phone.Label == "" {
		w.Phone.Label = "Call an agent"
	}
	if w.Phone.IconSVG == "" {
		w.Phone.IconSVG = defaultPhoneIcon
	}
	w.Phone.IconSVG = SanitizeMarkup(w.Phone.IconSVG)

	if w.PollInterval <= 0 {
		w.PollInterval = 200 * time.Millisecond
	}
	if w.MaxPolls <= 0 {
		w.MaxPolls = 50
	}
	if w.HideInterval <= 0 {
		w.HideInterval = 500 * time.Millisecond
	}
	if w.SafetyTimeout <= 0 {
		w.SafetyTimeout = 20 * time.Second
	}
}
