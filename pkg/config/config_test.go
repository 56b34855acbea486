package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OSName != "Linux" {
		t.Errorf("Expected default OS name 'Linux', got %s", cfg.OSName)
	}

	if cfg.AliveInterval != 895*time.Second {
		t.Errorf("Expected alive interval 895s, got %v", cfg.AliveInterval)
	}

	if cfg.SearchWaitTime != 3*time.Second {
		t.Errorf("Expected search wait time 3s, got %v", cfg.SearchWaitTime)
	}

	if !cfg.SupportPnpRootDevice {
		t.Error("Expected pnp:rootdevice support to be enabled by default")
	}

	if len(cfg.AdvertisedDevices) != 0 {
		t.Errorf("Expected no advertised devices by default, got %d", len(cfg.AdvertisedDevices))
	}
}

func TestLoadFromEnv_NoEnvVars(t *testing.T) {
	clearTestEnvVars()

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.OSName != "Linux" {
		t.Errorf("Expected default OS name, got %s", cfg.OSName)
	}

	if cfg.AliveInterval != 895*time.Second {
		t.Errorf("Expected default alive interval, got %v", cfg.AliveInterval)
	}
}

func TestLoadFromEnv_WithEnvVars(t *testing.T) {
	clearTestEnvVars()

	os.Setenv("SSDP_OS_NAME", "TestOS")
	os.Setenv("SSDP_OS_VERSION", "1.2.3")
	os.Setenv("SSDP_SUPPORT_PNP_ROOTDEVICE", "true")
	os.Setenv("SSDP_SEND_ONLY_MATCHED_HOST", "true")
	os.Setenv("SSDP_ALIVE_INTERVAL", "60s")
	os.Setenv("SSDP_NOTIFICATION_FILTER", "upnp:rootdevice")
	os.Setenv("SSDP_SEARCH_WAIT_TIME", "5s")
	os.Setenv("SSDP_SEARCH_INTERVAL", "120s")
	os.Setenv("SSDP_HTTP_LISTEN_ADDR", ":9090")
	defer clearTestEnvVars()

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.OSName != "TestOS" {
		t.Errorf("Expected OS name 'TestOS', got %s", cfg.OSName)
	}
	if cfg.OSVersion != "1.2.3" {
		t.Errorf("Expected OS version '1.2.3', got %s", cfg.OSVersion)
	}
	if !cfg.SupportPnpRootDevice {
		t.Error("Expected pnp:rootdevice support to be enabled")
	}
	if !cfg.SendOnlyMatchedHost {
		t.Error("Expected send-only-matched-host to be enabled")
	}
	if cfg.AliveInterval != 60*time.Second {
		t.Errorf("Expected alive interval 60s, got %v", cfg.AliveInterval)
	}
	if cfg.NotificationFilter != "upnp:rootdevice" {
		t.Errorf("Expected notification filter 'upnp:rootdevice', got %s", cfg.NotificationFilter)
	}
	if cfg.SearchWaitTime != 5*time.Second {
		t.Errorf("Expected search wait time 5s, got %v", cfg.SearchWaitTime)
	}
	if cfg.SearchInterval != 120*time.Second {
		t.Errorf("Expected search interval 120s, got %v", cfg.SearchInterval)
	}
	if cfg.HTTPListenAddr != ":9090" {
		t.Errorf("Expected HTTP listen addr ':9090', got %s", cfg.HTTPListenAddr)
	}
}

func TestParseDeviceString_FullRecord(t *testing.T) {
	device, err := parseDeviceString("urn:schemas-upnp-org:device:MediaServer:1|Living Room|abc-123|http://192.168.1.100:8090/desc.xml|600")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if device.DeviceType != "urn:schemas-upnp-org:device:MediaServer:1" {
		t.Errorf("Unexpected device type %q", device.DeviceType)
	}
	if device.FriendlyName != "Living Room" {
		t.Errorf("Unexpected friendly name %q", device.FriendlyName)
	}
	if device.UUID != "abc-123" {
		t.Errorf("Unexpected uuid %q", device.UUID)
	}
	if device.Location != "http://192.168.1.100:8090/desc.xml" {
		t.Errorf("Unexpected location %q", device.Location)
	}
	if device.CacheLifetime != 600 {
		t.Errorf("Expected cache lifetime 600, got %d", device.CacheLifetime)
	}
}

func TestParseDeviceString_DefaultCacheLifetime(t *testing.T) {
	device, err := parseDeviceString("urn:schemas-upnp-org:device:MediaServer:1|Living Room|abc-123|http://192.168.1.100:8090/desc.xml")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if device.CacheLifetime != 1800 {
		t.Errorf("Expected default cache lifetime 1800, got %d", device.CacheLifetime)
	}
}

func TestParseDeviceString_MissingFields(t *testing.T) {
	_, err := parseDeviceString("urn:schemas-upnp-org:device:MediaServer:1|Living Room")
	if err == nil {
		t.Error("Expected error for too few fields, got nil")
	}
}

func TestParseDeviceString_EmptyRequiredField(t *testing.T) {
	_, err := parseDeviceString("|Living Room|abc-123|http://192.168.1.100:8090/desc.xml")
	if err == nil {
		t.Error("Expected error for empty deviceType, got nil")
	}

	_, err = parseDeviceString("urn:schemas-upnp-org:device:MediaServer:1|Living Room||http://192.168.1.100:8090/desc.xml")
	if err == nil {
		t.Error("Expected error for empty uuid, got nil")
	}

	_, err = parseDeviceString("urn:schemas-upnp-org:device:MediaServer:1|Living Room|abc-123|")
	if err == nil {
		t.Error("Expected error for empty location, got nil")
	}
}

func TestParseDeviceString_InvalidCacheLifetime(t *testing.T) {
	_, err := parseDeviceString("urn:schemas-upnp-org:device:MediaServer:1|Living Room|abc-123|http://192.168.1.100:8090/desc.xml|not-a-number")
	if err == nil {
		t.Error("Expected error for non-numeric cache lifetime, got nil")
	}

	_, err = parseDeviceString("urn:schemas-upnp-org:device:MediaServer:1|Living Room|abc-123|http://192.168.1.100:8090/desc.xml|0")
	if err == nil {
		t.Error("Expected error for zero cache lifetime, got nil")
	}
}

func TestParseAdvertisedDevices_Multiple(t *testing.T) {
	clearTestEnvVars()
	os.Setenv("SSDP_ADVERTISED_DEVICES",
		"urn:schemas-upnp-org:device:MediaServer:1|Living Room|uuid-1|http://192.168.1.100:8090/desc.xml;"+
			"urn:schemas-upnp-org:device:MediaServer:1|Kitchen|uuid-2|http://192.168.1.101:8090/desc.xml|300")
	defer clearTestEnvVars()

	devices, err := parseAdvertisedDevices()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}

	if devices[0].FriendlyName != "Living Room" {
		t.Errorf("Expected first device 'Living Room', got %s", devices[0].FriendlyName)
	}
	if devices[0].CacheLifetime != 1800 {
		t.Errorf("Expected first device default cache lifetime, got %d", devices[0].CacheLifetime)
	}

	if devices[1].FriendlyName != "Kitchen" {
		t.Errorf("Expected second device 'Kitchen', got %s", devices[1].FriendlyName)
	}
	if devices[1].CacheLifetime != 300 {
		t.Errorf("Expected second device cache lifetime 300, got %d", devices[1].CacheLifetime)
	}
}

func TestParseAdvertisedDevices_EmptyString(t *testing.T) {
	clearTestEnvVars()
	os.Setenv("SSDP_ADVERTISED_DEVICES", "")
	defer clearTestEnvVars()

	devices, err := parseAdvertisedDevices()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(devices) != 0 {
		t.Errorf("Expected 0 devices for empty string, got %d", len(devices))
	}
}

func TestParseAdvertisedDevices_InvalidEntry(t *testing.T) {
	clearTestEnvVars()
	os.Setenv("SSDP_ADVERTISED_DEVICES", "urn:x|Living Room")
	defer clearTestEnvVars()

	_, err := parseAdvertisedDevices()
	if err == nil {
		t.Error("Expected error for invalid device configuration, got nil")
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdvertisedDevices = []DeviceConfig{
		{DeviceType: "urn:x", UUID: "abc", Location: "http://x/desc.xml"},
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got error: %v", err)
	}
}

func TestValidate_InvalidDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AliveInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero alive interval, got nil")
	}

	cfg = DefaultConfig()
	cfg.SearchWaitTime = 500 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for search wait time below 1s, got nil")
	}

	cfg = DefaultConfig()
	cfg.SearchInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero search interval, got nil")
	}
}

func TestValidate_InvalidDevices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdvertisedDevices = []DeviceConfig{
		{DeviceType: "", UUID: "abc", Location: "http://x/desc.xml"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty deviceType, got nil")
	}

	cfg.AdvertisedDevices[0].DeviceType = "urn:x"
	cfg.AdvertisedDevices[0].UUID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty uuid, got nil")
	}
}

func clearTestEnvVars() {
	envVars := []string{
		"SSDP_OS_NAME",
		"SSDP_OS_VERSION",
		"SSDP_SUPPORT_PNP_ROOTDEVICE",
		"SSDP_SEND_ONLY_MATCHED_HOST",
		"SSDP_ALIVE_INTERVAL",
		"SSDP_NOTIFICATION_FILTER",
		"SSDP_SEARCH_WAIT_TIME",
		"SSDP_SEARCH_INTERVAL",
		"SSDP_HTTP_LISTEN_ADDR",
		"SSDP_ADVERTISED_DEVICES",
	}

	for _, env := range envVars {
		os.Unsetenv(env)
	}
}
