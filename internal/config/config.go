// Package config loads the gateway's YAML configuration file. Every
// field has a working default so the gateway starts with no file at all.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's runtime configuration.
type Config struct {
	// Ocean server the gateway connects up to.
	OceanHost     string `yaml:"ocean_host"`
	OceanShipPort int    `yaml:"ocean_ship_port"`
	OceanSubPort  int    `yaml:"ocean_sub_port"`

	// TCP port submarine agents connect down to.
	FleetPort int `yaml:"fleet_port"`

	// HTTP listen address for the control API.
	HTTPAddr string `yaml:"http_addr"`

	// Ship identity used when launching into the ocean.
	ShipName string `yaml:"ship_name"`

	DBPath      string `yaml:"db_path"`
	PicturesDir string `yaml:"pictures_dir"`

	// Path to the submarine agent jar started via the API.
	AgentJar string `yaml:"agent_jar"`

	// Redis address for the event stream mirror; empty disables it.
	RedisAddr string `yaml:"redis_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		OceanHost:     "127.0.0.1",
		OceanShipPort: 8150,
		OceanSubPort:  8151,
		FleetPort:     8152,
		HTTPAddr:      ":8080",
		ShipName:      "shipgate",
		DBPath:        "shipgate.db",
		PicturesDir:   "pictures",
		AgentJar:      "",
		RedisAddr:     "",
	}
}

// Load reads and parses a YAML config file, applying defaults for any
// field the file leaves unset. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
