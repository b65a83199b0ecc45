package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all orchestrator configuration. Values come from the optional
// YAML config file first, then environment variables, then defaults.
type Config struct {
	// Docker connection. The TLS paths apply to tcp:// endpoints and must
	// be set together.
	DockerSock    string
	DockerTLSCA   string
	DockerTLSCert string
	DockerTLSKey  string

	// Storage
	DBPath string

	// HTTP
	ListenAddr string
	BaseDomain string // suffix for sandbox hostnames: <uuid>.<BaseDomain>

	// Launch policy
	MaxPerUser  int
	NetworkName string

	// Lifetimes
	IdleLimit         time.Duration
	LifetimeLimit     time.Duration
	CheckInterval     time.Duration
	ReconcileInterval time.Duration
	ReconcileSchedule string // optional cron expression; overrides ReconcileInterval
	StoppedRetention  time.Duration

	// Proxy
	ProxyTimeout time.Duration

	// Image builds
	WorkDir       string
	UploadMaxSize int64

	// Logging
	LogJSON bool

	// Notifications
	WebhookURL     string
	WebhookHeaders string // comma-separated "Key:Value" pairs
	MQTTBroker     string
	MQTTTopic      string
	MQTTClientID   string
	MQTTUsername   string
	MQTTPassword   string
	MQTTQoS        int
}

// Load reads configuration. When TRAINING_CONFIG_FILE points at a YAML file
// its keys (named like the env variables) are applied first; environment
// variables override file values; defaults fill the rest.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("TRAINING_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	v := resolver{file: file}

	return &Config{
		DockerSock:        v.str("TRAINING_DOCKER_SOCK", "/var/run/docker.sock"),
		DockerTLSCA:       v.str("TRAINING_DOCKER_TLS_CA", ""),
		DockerTLSCert:     v.str("TRAINING_DOCKER_TLS_CERT", ""),
		DockerTLSKey:      v.str("TRAINING_DOCKER_TLS_KEY", ""),
		DBPath:            v.str("TRAINING_DB_PATH", "/data/orchestrator.db"),
		ListenAddr:        v.str("TRAINING_LISTEN_ADDR", ":8000"),
		BaseDomain:        v.str("TRAINING_BASE_DOMAIN", ""),
		MaxPerUser:        v.num("TRAINING_MAX_PER_USER", 3),
		NetworkName:       v.str("TRAINING_NETWORK_NAME", "training_network"),
		IdleLimit:         v.dur("TRAINING_IDLE_LIMIT", 15*time.Minute),
		LifetimeLimit:     v.dur("TRAINING_LIFETIME_LIMIT", 2*time.Hour),
		CheckInterval:     v.dur("TRAINING_CHECK_INTERVAL", 60*time.Second),
		ReconcileInterval: v.dur("TRAINING_RECONCILE_INTERVAL", 6*time.Hour),
		ReconcileSchedule: v.str("TRAINING_RECONCILE_SCHEDULE", ""),
		StoppedRetention:  v.dur("TRAINING_STOPPED_RETENTION", 24*time.Hour),
		ProxyTimeout:      v.dur("TRAINING_PROXY_TIMEOUT", 60*time.Second),
		WorkDir:           v.str("TRAINING_WORK_DIR", "/tmp/training-builds"),
		UploadMaxSize:     v.bytes("TRAINING_UPLOAD_MAX_SIZE", 50<<20),
		LogJSON:           v.boolean("TRAINING_LOG_JSON", true),
		WebhookURL:        v.str("TRAINING_WEBHOOK_URL", ""),
		WebhookHeaders:    v.str("TRAINING_WEBHOOK_HEADERS", ""),
		MQTTBroker:        v.str("TRAINING_MQTT_BROKER", ""),
		MQTTTopic:         v.str("TRAINING_MQTT_TOPIC", "training/events"),
		MQTTClientID:      v.str("TRAINING_MQTT_CLIENT_ID", ""),
		MQTTUsername:      v.str("TRAINING_MQTT_USERNAME", ""),
		MQTTPassword:      v.str("TRAINING_MQTT_PASSWORD", ""),
		MQTTQoS:           v.num("TRAINING_MQTT_QOS", 0),
	}, nil
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseDomain == "" {
		errs = append(errs, errors.New("TRAINING_BASE_DOMAIN must be set"))
	}
	if c.MaxPerUser <= 0 {
		errs = append(errs, fmt.Errorf("TRAINING_MAX_PER_USER must be > 0, got %d", c.MaxPerUser))
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"TRAINING_IDLE_LIMIT", c.IdleLimit},
		{"TRAINING_LIFETIME_LIMIT", c.LifetimeLimit},
		{"TRAINING_CHECK_INTERVAL", c.CheckInterval},
		{"TRAINING_RECONCILE_INTERVAL", c.ReconcileInterval},
		{"TRAINING_STOPPED_RETENTION", c.StoppedRetention},
		{"TRAINING_PROXY_TIMEOUT", c.ProxyTimeout},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %s", d.name, d.val))
		}
	}
	if c.UploadMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("TRAINING_UPLOAD_MAX_SIZE must be > 0, got %d", c.UploadMaxSize))
	}
	tlsSet := 0
	for _, path := range []string{c.DockerTLSCA, c.DockerTLSCert, c.DockerTLSKey} {
		if path != "" {
			tlsSet++
		}
	}
	if tlsSet != 0 && tlsSet != 3 {
		errs = append(errs, errors.New("TRAINING_DOCKER_TLS_CA, TRAINING_DOCKER_TLS_CERT and TRAINING_DOCKER_TLS_KEY must be set together"))
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Errorf("TRAINING_RECONCILE_SCHEDULE is not a valid cron expression: %w", err))
		}
	}
	return errors.Join(errs...)
}

// loadFile reads a YAML config file into a flat string map. Returns an empty
// map when path is empty.
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	vals := make(map[string]string, len(raw))
	for k, v := range raw {
		vals[k] = fmt.Sprint(v)
	}
	return vals, nil
}

// resolver looks up a key in the environment first, then the config file.
type resolver struct {
	file map[string]string
}

func (r resolver) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return r.file[key]
}

func (r resolver) str(key, def string) string {
	if v := r.lookup(key); v != "" {
		return v
	}
	return def
}

func (r resolver) num(key string, def int) int {
	v := r.lookup(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (r resolver) bytes(key string, def int64) int64 {
	v := r.lookup(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func (r resolver) boolean(key string, def bool) bool {
	v := r.lookup(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (r resolver) dur(key string, def time.Duration) time.Duration {
	v := r.lookup(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
