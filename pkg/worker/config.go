package worker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/driftsec/fuzzfleet/pkg/types"
)

// Config holds worker configuration. Sources are merged in precedence order
// flags > environment > config file > defaults; the CLI layer applies flag
// overrides after Load.
type Config struct {
	WorkerID      string `yaml:"worker_id"`
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	Threads       int    `yaml:"threads"`
	Hostname      string `yaml:"hostname"`
	LogLevel      string `yaml:"log_level"`
	FuzzerPath    string `yaml:"fuzzer_path"`
}

// Load builds a worker config from an optional YAML file and environment
// fallbacks (WORKER_ID, REDIS_HOST, REDIS_PORT, REDIS_PASSWORD,
// WORKER_THREADS, HOSTNAME).
func Load(path string) (*Config, error) {
	cfg := &Config{
		RedisHost:  "localhost",
		RedisPort:  6379,
		Threads:    types.DefaultThreads,
		LogLevel:   "info",
		FuzzerPath: "ffuf",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Threads < types.MinWorkerThreads || cfg.Threads > types.MaxWorkerThreads {
		return nil, fmt.Errorf("threads %d out of range [%d, %d]",
			cfg.Threads, types.MinWorkerThreads, types.MaxWorkerThreads)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WORKER_ID"); v != "" {
		c.WorkerID = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("WORKER_THREADS"); v != "" {
		if threads, err := strconv.Atoi(v); err == nil {
			c.Threads = threads
		}
	}
	if v := os.Getenv("HOSTNAME"); v != "" {
		c.Hostname = v
	}
}

func (c *Config) applyDefaults() {
	if c.WorkerID == "" {
		c.WorkerID = "worker_" + randomHex(4)
	}
	if c.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			c.Hostname = host
		} else {
			c.Hostname = "unknown"
		}
	}
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(buf)
}
