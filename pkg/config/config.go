// Package config provides configuration management for the simulator.
package config

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"

	"github.com/ipd-simulator/pkg/errors"
)

// Config holds all configuration for the application.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Output     OutputConfig     `mapstructure:"output"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
}

// SimulationConfig holds the grid and scheduling parameters.
type SimulationConfig struct {
	Width          int     `mapstructure:"width"`
	Height         int     `mapstructure:"height"`
	Steps          int64   `mapstructure:"steps"`
	Seed           uint64  `mapstructure:"seed"`
	Neighborhood   int     `mapstructure:"neighborhood"`
	MemoryCapacity int     `mapstructure:"memory_capacity"`
	InitialFitness float64 `mapstructure:"initial_fitness"`
	Threads        int     `mapstructure:"threads"`
	ChunkSize      int     `mapstructure:"chunk_size"`
}

// LearningConfig holds the Q-learning parameters.
type LearningConfig struct {
	Alpha   float64 `mapstructure:"alpha"`
	Gamma   float64 `mapstructure:"gamma"`
	Epsilon float64 `mapstructure:"epsilon"`
}

// PolicyConfig holds the shared policy store parameters.
type PolicyConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// OutputConfig holds writer configuration.
type OutputConfig struct {
	CSVPath     string `mapstructure:"csv_path"`
	VideoPath   string `mapstructure:"video_path"`
	Video       bool   `mapstructure:"video"`
	FPS         int    `mapstructure:"fps"`
	SummaryPath string `mapstructure:"summary_path"`
}

// DatabaseConfig holds optional run persistence configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, mysql or postgres
	Path     string `mapstructure:"path"` // sqlite file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the specified file path. With an empty path,
// config.yaml is searched for in the standard locations and its absence is not
// an error; defaults apply and the environment can override. A file named by
// a non-empty path that cannot be read is an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ipd-simulator")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("IPDSIM")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.width", 128)
	v.SetDefault("simulation.height", 128)
	v.SetDefault("simulation.steps", 100)
	v.SetDefault("simulation.seed", 1)
	v.SetDefault("simulation.neighborhood", 4)
	v.SetDefault("simulation.memory_capacity", 4)
	v.SetDefault("simulation.initial_fitness", 0.1)
	v.SetDefault("simulation.threads", 0) // 0 = all cores
	v.SetDefault("simulation.chunk_size", 4096)

	v.SetDefault("learning.alpha", 0.1)
	v.SetDefault("learning.gamma", 0.9)
	v.SetDefault("learning.epsilon", 0.1)

	v.SetDefault("policy.capacity", 1<<20)

	v.SetDefault("output.csv_path", "")
	v.SetDefault("output.video", false)
	v.SetDefault("output.video_path", "frames.rgb")
	v.SetDefault("output.fps", 30)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./runs.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)

	v.SetDefault("log.level", "info")
}

// Validate checks the grid dimensions, the frame rate when video is on, and
// the database type when persistence is on. The learning, memory, store and
// neighborhood ranges are not checked here; the engine enforces them at
// construction.
func (c *Config) Validate() error {
	if c.Simulation.Width < 1 || c.Simulation.Height < 1 {
		return errors.Newf(errors.CodeConfigInvalid, "grid dimensions %dx%d must be >= 1x1",
			c.Simulation.Width, c.Simulation.Height)
	}
	if c.Output.Video && c.Output.FPS < 1 {
		return errors.Newf(errors.CodeConfigInvalid, "fps %d must be >= 1", c.Output.FPS)
	}
	if c.Database.Enabled {
		switch c.Database.Type {
		case "sqlite", "mysql", "postgres":
		default:
			return errors.Newf(errors.CodeConfigInvalid, "unsupported database type: %s", c.Database.Type)
		}
	}
	return nil
}
