// File: ipc/config.go
// Author: natyamatsya
// License: Apache-2.0
//
// Config is a struct of tunables plus a constructor returning sane
// defaults, covering the ring/chunk-store knobs this transport needs.
// LoadFile/LoadEnv are additions grounded on AlephTX-aleph-tx's
// feeder/config package (TOML) and its godotenv dependency (.env
// overrides for local/dev/test runs).

package ipc

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipclog"
)

// Config exposes every configurable transport parameter.
type Config struct {
	RingCapacity    uint32        `toml:"ring_capacity"`
	SlotPayloadSize uint32        `toml:"slot_payload_size"`
	ChunksPerClass  int           `toml:"chunks_per_class"`
	DefaultTimeout  time.Duration `toml:"default_timeout"`

	// DeadReaderProbe, when nonzero, lets a blocked Send reclaim a slot
	// held by a dead connection itself rather than waiting for the
	// background reaper to get to it: once a producer has been stalled
	// on a full ring for at least this long, it runs a reap pass inline
	// before waiting again. Zero (the default) disables this: back-
	// pressure blocks indefinitely until either the reader catches up
	// or the background reaper (see ReapInterval) clears it.
	DeadReaderProbe time.Duration `toml:"dead_reader_probe"`

	// ReapInterval controls the background dead-connection sweep
	// (internal/reaper). Zero disables the background loop.
	ReapInterval time.Duration `toml:"reap_interval"`

	LogLevel string `toml:"log_level"`
}

// DefaultConfig provides a baseline configuration for most use cases.
func DefaultConfig() *Config {
	return &Config{
		RingCapacity:    1024,
		SlotPayloadSize: 256,
		ChunksPerClass:  64,
		DefaultTimeout:  5 * time.Second,
		DeadReaderProbe: 0,
		ReapInterval:    2 * time.Second,
		LogLevel:        "info",
	}
}

// LoadFile decodes an optional TOML file of transport tunables on top
// of DefaultConfig(). A missing file is not an error: callers that
// never ship one still get sane defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv applies .env-style overrides (IPC_RING_CAPACITY,
// IPC_SLOT_PAYLOAD_SIZE, IPC_CHUNKS_PER_CLASS, IPC_DEFAULT_TIMEOUT,
// IPC_DEAD_READER_PROBE, IPC_REAP_INTERVAL, IPC_LOG_LEVEL) on top of
// cfg, reading envFile first if present (godotenv.Load is a no-op
// when the file is absent).
func LoadEnv(cfg *Config, envFile string) *Config {
	_ = godotenv.Load(envFile)

	if v, ok := os.LookupEnv("IPC_RING_CAPACITY"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.RingCapacity = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("IPC_SLOT_PAYLOAD_SIZE"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.SlotPayloadSize = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("IPC_CHUNKS_PER_CLASS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunksPerClass = n
		}
	}
	if v, ok := os.LookupEnv("IPC_DEFAULT_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DefaultTimeout = d
		}
	}
	if v, ok := os.LookupEnv("IPC_DEAD_READER_PROBE"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DeadReaderProbe = d
		}
	}
	if v, ok := os.LookupEnv("IPC_REAP_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReapInterval = d
		}
	}
	if v, ok := os.LookupEnv("IPC_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return cfg
}

// applyLogging wires cfg.LogLevel into the shared ipclog logger.
func applyLogging(cfg *Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	ipclog.SetLevel(level)
}

func (cfg *Config) chunkStoreChunksPerClass() int {
	if cfg.ChunksPerClass <= 0 {
		return 1
	}
	return cfg.ChunksPerClass
}
