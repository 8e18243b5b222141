package chatwatch

import (
	"github.com/hazyhaar/widgetwatch/chatwatch/internal/config"
)

// Config is the top-level chatwatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// WidgetConfig describes the chat widget markup and timings.
type WidgetConfig = config.WidgetConfig

// PageConfig defines a page to watch.
type PageConfig = config.PageConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// RegistrySchema is the DDL of the chat_pages table read by WatchRegistry.
const RegistrySchema = config.Schema
