// Package config provides configuration management for the rssdp-go daemon and CLI.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings a Publisher/Locator pair needs at startup.
type Config struct {
	// Advertisement identity
	OSName    string `env:"SSDP_OS_NAME" default:"Linux"`
	OSVersion string `env:"SSDP_OS_VERSION" default:"0.0"`

	// Publisher settings
	SupportPnpRootDevice bool          `env:"SSDP_SUPPORT_PNP_ROOTDEVICE" default:"true"`
	SendOnlyMatchedHost  bool          `env:"SSDP_SEND_ONLY_MATCHED_HOST" default:"false"`
	AliveInterval        time.Duration `env:"SSDP_ALIVE_INTERVAL" default:"895s"`

	// Locator settings
	NotificationFilter string        `env:"SSDP_NOTIFICATION_FILTER" default:""`
	SearchWaitTime     time.Duration `env:"SSDP_SEARCH_WAIT_TIME" default:"3s"`
	SearchInterval     time.Duration `env:"SSDP_SEARCH_INTERVAL" default:"300s"`

	// Preconfigured devices to advertise from .env, in addition to any
	// registered programmatically.
	AdvertisedDevices []DeviceConfig `env:"SSDP_ADVERTISED_DEVICES"`

	// HTTP server settings (cmd/ssdpd)
	HTTPListenAddr string `env:"SSDP_HTTP_LISTEN_ADDR" default:":8080"`
}

// DeviceConfig describes one root device to advertise, as parsed from
// SSDP_ADVERTISED_DEVICES.
type DeviceConfig struct {
	DeviceType    string `json:"deviceType"`
	FriendlyName  string `json:"friendlyName"`
	UUID          string `json:"uuid"`
	Location      string `json:"location"`
	CacheLifetime int    `json:"cacheLifetime"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		OSName:               "Linux",
		OSVersion:            "0.0",
		SupportPnpRootDevice: true,
		SendOnlyMatchedHost:  false,
		AliveInterval:        895 * time.Second,
		NotificationFilter:   "",
		SearchWaitTime:       3 * time.Second,
		SearchInterval:       300 * time.Second,
		AdvertisedDevices:    []DeviceConfig{},
		HTTPListenAddr:       ":8080",
	}
}

// LoadFromEnv loads configuration from environment variables and .env file.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	_ = loadDotEnv() // missing .env is not an error, defaults still apply

	if v := os.Getenv("SSDP_OS_NAME"); v != "" {
		cfg.OSName = v
	}
	if v := os.Getenv("SSDP_OS_VERSION"); v != "" {
		cfg.OSVersion = v
	}
	if v := os.Getenv("SSDP_SUPPORT_PNP_ROOTDEVICE"); v != "" {
		cfg.SupportPnpRootDevice = v == "true" || v == "1"
	}
	if v := os.Getenv("SSDP_SEND_ONLY_MATCHED_HOST"); v != "" {
		cfg.SendOnlyMatchedHost = v == "true" || v == "1"
	}
	if v := os.Getenv("SSDP_ALIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AliveInterval = d
		}
	}
	if v := os.Getenv("SSDP_NOTIFICATION_FILTER"); v != "" {
		cfg.NotificationFilter = v
	}
	if v := os.Getenv("SSDP_SEARCH_WAIT_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SearchWaitTime = d
		}
	}
	if v := os.Getenv("SSDP_SEARCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SearchInterval = d
		}
	}
	if v := os.Getenv("SSDP_HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTPListenAddr = v
	}

	devices, err := parseAdvertisedDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to parse advertised devices: %w", err)
	}
	cfg.AdvertisedDevices = devices

	return cfg, nil
}

// loadDotEnv loads variables from a .env file in the working directory.
func loadDotEnv() error {
	file, err := os.Open(".env")
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
				(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
				value = value[1 : len(value)-1]
			}
		}

		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

// parseAdvertisedDevices parses SSDP_ADVERTISED_DEVICES, a
// semicolon-separated list of
// "deviceType|friendlyName|uuid|location|cacheLifetimeSeconds" records.
func parseAdvertisedDevices() ([]DeviceConfig, error) {
	raw := os.Getenv("SSDP_ADVERTISED_DEVICES")
	if raw == "" {
		return []DeviceConfig{}, nil
	}

	var devices []DeviceConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		device, err := parseDeviceString(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid device configuration %q: %w", entry, err)
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// parseDeviceString parses one
// "deviceType|friendlyName|uuid|location|cacheLifetimeSeconds" record.
func parseDeviceString(entry string) (DeviceConfig, error) {
	fields := strings.Split(entry, "|")
	if len(fields) < 4 {
		return DeviceConfig{}, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}

	device := DeviceConfig{
		DeviceType:    strings.TrimSpace(fields[0]),
		FriendlyName:  strings.TrimSpace(fields[1]),
		UUID:          strings.TrimSpace(fields[2]),
		Location:      strings.TrimSpace(fields[3]),
		CacheLifetime: 1800,
	}

	if device.DeviceType == "" {
		return device, fmt.Errorf("deviceType cannot be empty")
	}
	if device.UUID == "" {
		return device, fmt.Errorf("uuid cannot be empty")
	}
	if device.Location == "" {
		return device, fmt.Errorf("location cannot be empty")
	}

	if len(fields) >= 5 && strings.TrimSpace(fields[4]) != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(fields[4]))
		if err != nil || seconds <= 0 {
			return device, fmt.Errorf("invalid cacheLifetime: %s", fields[4])
		}
		device.CacheLifetime = seconds
	}

	return device, nil
}

// Validate checks whether the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.OSName == "" {
		return fmt.Errorf("OS name cannot be empty")
	}
	if c.OSVersion == "" {
		return fmt.Errorf("OS version cannot be empty")
	}
	if c.AliveInterval <= 0 {
		return fmt.Errorf("alive interval must be positive")
	}
	if c.SearchWaitTime != 0 && c.SearchWaitTime <= time.Second {
		return fmt.Errorf("search wait time must be 0 or greater than 1s")
	}
	if c.SearchInterval <= 0 {
		return fmt.Errorf("search interval must be positive")
	}

	for i, device := range c.AdvertisedDevices {
		if device.DeviceType == "" {
			return fmt.Errorf("device %d: deviceType cannot be empty", i)
		}
		if device.UUID == "" {
			return fmt.Errorf("device %d: uuid cannot be empty", i)
		}
		if device.Location == "" {
			return fmt.Errorf("device %d: location cannot be empty", i)
		}
	}

	return nil
}
