package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	StationID    string `yaml:"station_id"`
	DatabasePath string `yaml:"database_path"`

	Remote    RemoteConfig    `yaml:"remote"`
	Web       WebConfig       `yaml:"web"`
	Vault     VaultConfig     `yaml:"vault"`
	Messaging MessagingConfig `yaml:"messaging"`

	// Operator selections persisted across restarts.
	Selected SelectedConfig `yaml:"selected"`
}

// RemoteConfig defines the remote record store connection.
type RemoteConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// VaultConfig holds the settings-area passcode. Only the bcrypt hash is
// stored; an empty hash keeps the settings area locked.
type VaultConfig struct {
	PasscodeHash string `yaml:"passcode_hash"`
}

// MessagingConfig defines the plant bus backend.
type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt", "kafka" or ""
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	ReportTopic         string        `yaml:"report_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// SelectedConfig remembers what the operator last picked.
type SelectedConfig struct {
	MachineID   string `yaml:"machine_id"`
	APIKeyID    string `yaml:"api_key_id"`
	ModelID     string `yaml:"model_id"`
	ScriptURLID string `yaml:"script_url_id"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		StationID:    "capstation-1",
		DatabasePath: "capstation.db",
		Remote: RemoteConfig{
			RefreshInterval: 5 * time.Minute,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Messaging: MessagingConfig{
			Backend:             "",
			ReportTopic:         "capstation/reports",
			OutboxDrainInterval: 5 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ClientID returns the configured MQTT client ID, or derives one from the
// station ID.
func (c *Config) ClientID() string {
	if c.Messaging.MQTT.ClientID != "" {
		return c.Messaging.MQTT.ClientID
	}
	return c.StationID
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
