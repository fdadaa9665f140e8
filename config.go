package etch

import "os"
import "strings"

import "gopkg.in/yaml.v3"
import "golang.org/x/xerrors"
import log "github.com/sirupsen/logrus"

// Config controls an Etch store. The zero value is not usable, start from DefaultConfig.
type Config struct {
	// Path of the data file, the index checkpoint lives next to it with an .idx suffix.
	// Empty means a temporary store removed on Close.
	Path string `yaml:"path"`

	// RegionSize is the size of each memory mapped window over the data file.
	RegionSize int64 `yaml:"region_size"`

	// GrowSize is the step by which the data file is extended ahead of appends.
	GrowSize int64 `yaml:"grow_size"`

	// Checkpoint enables writing the index checkpoint on Flush and Close.
	Checkpoint bool `yaml:"checkpoint"`

	// CheckpointCodec compresses the checkpoint: zstd, lz4 or none.
	CheckpointCodec string `yaml:"checkpoint_codec"`

	// SyncWrites fsyncs after every appended record.
	SyncWrites bool `yaml:"sync_writes"`

	// CacheSize is the number of decoded cells a resolver keeps.
	CacheSize int `yaml:"cache_size"`

	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		RegionSize:      1 << 30,
		GrowSize:        64 << 20,
		Checkpoint:      true,
		CheckpointCodec: "zstd",
		CacheSize:       DefaultCacheSize,
		LogLevel:        "info",
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("reading config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, xerrors.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.RegionSize <= 0 || c.RegionSize%int64(os.Getpagesize()) != 0 {
		return xerrors.Errorf("region_size %d must be a positive multiple of the page size", c.RegionSize)
	}
	if c.GrowSize <= 0 {
		return xerrors.Errorf("grow_size %d must be positive", c.GrowSize)
	}
	if _, err := codecByName(c.CheckpointCodec); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return xerrors.Errorf("log_level: %w", err)
		}
	}
	return nil
}

func codecByName(name string) (byte, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return codecNone, nil
	case "zstd":
		return codecZstd, nil
	case "lz4":
		return codecLZ4, nil
	}
	return 0, xerrors.Errorf("unknown checkpoint codec %q", name)
}
