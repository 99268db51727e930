// Package config loads the capture service settings from a KEY=VALUE file.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/transport"
)

// DefaultPath is the config file read when no -config flag is given.
const DefaultPath = "capture_config.txt"

// Config holds all application configuration values.
type Config struct {
	// Sensor transport: mock, mqtt, serial or ble
	Transport    string
	DevicePicker string // pinned, first or console
	SlotDevices  map[device.SlotID]string

	ServiceUUID        string
	CharacteristicUUID string

	// MQTT
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	// Serial
	SerialPorts    []string
	SerialBaudRate uint

	// BLE
	BLEScanSeconds int

	// Mock transport frame interval, milliseconds
	MockIntervalMS int

	// GPS (optional)
	GPSSerialPort string
	GPSBaudRate   uint

	// Upload: none, dir, http, mqtt or kafka
	UploadMode          string
	UploadDir           string
	UploadURL           string
	UploadMQTTTopic     string
	KafkaBrokers        []string
	KafkaTopic          string
	BreakerMaxFailures  int
	BreakerResetSeconds int

	ExerciseCatalog string // empty for the built-in catalog

	// Web Server
	WebServerPort int

	CustomerID string
	TestID     string
}

// Default returns the settings used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Transport:           "mock",
		DevicePicker:        "pinned",
		SlotDevices:         make(map[device.SlotID]string),
		ServiceUUID:         transport.DefaultServiceUUID,
		CharacteristicUUID:  transport.DefaultCharacteristicUUID,
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientID:        "motion-capture",
		MQTTTopicPrefix:     "motion",
		SerialBaudRate:      115200,
		BLEScanSeconds:      5,
		MockIntervalMS:      20,
		GPSBaudRate:         9600,
		UploadMode:          "none",
		UploadDir:           "uploads",
		UploadMQTTTopic:     "motion/uploads",
		KafkaTopic:          "motion-uploads",
		BreakerMaxFailures:  3,
		BreakerResetSeconds: 30,
		WebServerPort:       8080,
	}
}

// Load reads the configuration file on top of the defaults.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return FromMap(values)
}

// FromMap applies KEY=VALUE pairs on top of the defaults and validates.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cfg.setValue(k, strings.TrimSpace(values[k])); err != nil {
			return nil, fmt.Errorf("config %s: %w", k, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	if slot, ok := slotKey(key); ok {
		id, err := device.ParseSlot(slot)
		if err != nil {
			return err
		}
		c.SlotDevices[id] = value
		return nil
	}

	switch key {
	case "TRANSPORT":
		switch value {
		case "mock", "mqtt", "serial", "ble":
			c.Transport = value
		default:
			return fmt.Errorf("TRANSPORT must be mock, mqtt, serial or ble, got %q", value)
		}
	case "DEVICE_PICKER":
		switch value {
		case "pinned", "first", "console":
			c.DevicePicker = value
		default:
			return fmt.Errorf("DEVICE_PICKER must be pinned, first or console, got %q", value)
		}
	case "SERVICE_UUID":
		c.ServiceUUID = value
	case "CHARACTERISTIC_UUID":
		c.CharacteristicUUID = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = strings.TrimSuffix(value, "/")

	// Serial
	case "SERIAL_PORTS":
		c.SerialPorts = splitList(value)
	case "SERIAL_BAUD_RATE":
		baud, err := parseBaud(value)
		if err != nil {
			return err
		}
		c.SerialBaudRate = baud

	case "BLE_SCAN_SECONDS":
		n, err := positive(value)
		if err != nil {
			return err
		}
		c.BLEScanSeconds = n
	case "MOCK_INTERVAL_MS":
		n, err := positive(value)
		if err != nil {
			return err
		}
		c.MockIntervalMS = n

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		baud, err := parseBaud(value)
		if err != nil {
			return err
		}
		c.GPSBaudRate = baud

	// Upload
	case "UPLOAD_MODE":
		switch value {
		case "none", "dir", "http", "mqtt", "kafka":
			c.UploadMode = value
		default:
			return fmt.Errorf("UPLOAD_MODE must be none, dir, http, mqtt or kafka, got %q", value)
		}
	case "UPLOAD_DIR":
		c.UploadDir = value
	case "UPLOAD_URL":
		c.UploadURL = value
	case "UPLOAD_MQTT_TOPIC":
		c.UploadMQTTTopic = strings.TrimSuffix(value, "/")
	case "KAFKA_BROKERS":
		c.KafkaBrokers = splitList(value)
	case "KAFKA_TOPIC":
		c.KafkaTopic = value
	case "BREAKER_MAX_FAILURES":
		n, err := positive(value)
		if err != nil {
			return err
		}
		c.BreakerMaxFailures = n
	case "BREAKER_RESET_SECONDS":
		n, err := positive(value)
		if err != nil {
			return err
		}
		c.BreakerResetSeconds = n

	case "EXERCISE_CATALOG":
		c.ExerciseCatalog = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	case "CUSTOMER_ID":
		c.CustomerID = value
	case "TEST_ID":
		c.TestID = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks the settings the chosen transport and upload mode need.
func (c *Config) validate() error {
	switch c.Transport {
	case "mqtt":
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required for the mqtt transport")
		}
	case "serial":
		if len(c.SerialPorts) == 0 {
			return fmt.Errorf("SERIAL_PORTS is required for the serial transport")
		}
	}
	if c.DevicePicker == "pinned" && c.Transport != "mock" && len(c.SlotDevices) == 0 {
		return fmt.Errorf("DEVICE_PICKER=pinned needs at least one SLOT_<SLOT>_DEVICE")
	}

	switch c.UploadMode {
	case "dir":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for UPLOAD_MODE=dir")
		}
	case "http":
		if c.UploadURL == "" {
			return fmt.Errorf("UPLOAD_URL is required for UPLOAD_MODE=http")
		}
	case "mqtt":
		if c.MQTTBroker == "" || c.UploadMQTTTopic == "" {
			return fmt.Errorf("MQTT_BROKER and UPLOAD_MQTT_TOPIC are required for UPLOAD_MODE=mqtt")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required for UPLOAD_MODE=kafka")
		}
	}
	return nil
}

// BLEScan is the scan window for device requests.
func (c *Config) BLEScan() time.Duration { return time.Duration(c.BLEScanSeconds) * time.Second }

// MockInterval is the period of synthetic frames.
func (c *Config) MockInterval() time.Duration {
	return time.Duration(c.MockIntervalMS) * time.Millisecond
}

// BreakerReset is how long an open upload breaker waits before a trial.
func (c *Config) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}

// slotKey extracts "left_thigh" from SLOT_LEFT_THIGH_DEVICE.
func slotKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "SLOT_") || !strings.HasSuffix(key, "_DEVICE") || len(key) <= len("SLOT__DEVICE") {
		return "", false
	}
	return strings.ToLower(key[len("SLOT_") : len(key)-len("_DEVICE")]), true
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBaud(value string) (uint, error) {
	baud, err := strconv.ParseUint(value, 10, 32)
	if err != nil || baud == 0 {
		return 0, fmt.Errorf("invalid baud rate %q", value)
	}
	return uint(baud), nil
}

func positive(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
