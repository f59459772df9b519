// Package config loads the server's JSON configuration file.
package config

import (
	"encoding/json"
	"os"
)

// Config is the on-disk JSON shape a Rendezvous server is started from.
type Config struct {
	DataFolder         string `json:"dataFolder"`
	NotificationServer string `json:"notificationServer"`
	LogFile            string `json:"logFile,omitempty"`
	Development        bool   `json:"development,omitempty"`
	StaticFiles        string `json:"staticFiles,omitempty"`
	ListenAddress      string `json:"listenAddress,omitempty"`
}

func (c *Config) setDefaults() {
	if c.DataFolder == "" {
		c.DataFolder = "./data"
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
}

// Load reads and parses the JSON config file at path, applying defaults
// to unset optional fields.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
