// Package config loads the JSON configuration file shared by the
// worker and host daemons, naming the coordinator connection, run
// directory, storage backend and (for workers) the queues to watch.
package config

import (
	"encoding/json"
	"net"
	"os"
	"strconv"

	"gitlab.com/NebulousLabs/errors"
)

// Config is the on-disk configuration for a worker or host process.
// Fields irrelevant to one role are simply left at their zero value.
type Config struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	RunDir  string `json:"runDir"`

	DBHost     string `json:"dbhost"`
	DBPort     int    `json:"dbport"`
	DBDatabase int    `json:"dbdb"`
	DBPassword string `json:"dbpassword"`

	// Queues names the priority-ordered list of queues a worker
	// watches. Unused by a Host.
	Queues []string `json:"queues"`

	// PoolSize is the number of executors a worker runs. Zero means
	// the worker picks its own default.
	PoolSize int `json:"poolSize"`

	// BucketPath is where a Host persists its file bucket snapshot
	// across restarts. Unused by a Worker.
	BucketPath string `json:"bucketPath"`
	// FilesDir is the backend key prefix a Host stores newly added
	// files under. Unused by a Worker.
	FilesDir string `json:"filesDir"`

	// MetricsAddress, if non-empty, is the address a Prometheus
	// /metrics endpoint is served on, separately from the file server.
	MetricsAddress string `json:"metricsAddress"`

	Backend BackendConfig `json:"backend"`
}

// RedisAddress formats the host/port pair as a single net.JoinHostPort
// address for the redis client.
func (c *Config) RedisAddress() string {
	return net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort))
}

// BackendConfig selects and configures a storage backend.
type BackendConfig struct {
	// Type is "fs" or "s3".
	Type string `json:"type"`
	// Dir is the root directory for the "fs" backend.
	Dir string `json:"dir"`
	// Bucket is the bucket name for the "s3" backend.
	Bucket string `json:"bucket"`
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(err, "config: read")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.AddContext(err, "config: decode")
	}
	return &cfg, nil
}
