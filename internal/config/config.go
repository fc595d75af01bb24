// Package config loads service configuration from an optional YAML file,
// a .env file and the environment. Environment values override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds every setting of the analysis service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tier      TierConfig      `yaml:"tier"`
	Database  DatabaseConfig  `yaml:"database"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR" env-default:":8007"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// EngineConfig configures the UCI engine each worker runs.
type EngineConfig struct {
	Path          string        `yaml:"path" env:"STOCKFISH_PATH" env-default:"stockfish"`
	HashMB        int           `yaml:"hash_mb" env:"ENGINE_HASH_MB" env-default:"512"`
	Threads       int           `yaml:"threads" env:"ENGINE_THREADS" env-default:"2"`
	Nice          int           `yaml:"nice" env:"ENGINE_NICE" env-default:"0"`
	Depth         int           `yaml:"depth" env:"ENGINE_DEPTH" env-default:"15"`
	MoveTime      time.Duration `yaml:"move_time" env:"ENGINE_MOVE_TIME" env-default:"0s"`
	CeilingFactor int           `yaml:"ceiling_factor" env:"ENGINE_CEILING_FACTOR" env-default:"3"`
	HardTimeout   time.Duration `yaml:"hard_timeout" env:"ENGINE_HARD_TIMEOUT" env-default:"30s"`
}

// AnalysisConfig holds the classification thresholds and phase rule.
type AnalysisConfig struct {
	BestMax            int     `yaml:"best_max" env:"CLASS_BEST_MAX" env-default:"10"`
	ExcellentMax       int     `yaml:"excellent_max" env:"CLASS_EXCELLENT_MAX" env-default:"25"`
	GoodMax            int     `yaml:"good_max" env:"CLASS_GOOD_MAX" env-default:"50"`
	InaccuracyMax      int     `yaml:"inaccuracy_max" env:"CLASS_INACCURACY_MAX" env-default:"100"`
	MistakeMax         int     `yaml:"mistake_max" env:"CLASS_MISTAKE_MAX" env-default:"300"`
	Refine             bool    `yaml:"refine" env:"CLASS_REFINE" env-default:"false"`
	OpeningPlies       int     `yaml:"opening_plies" env:"PHASE_OPENING_PLIES" env-default:"20"`
	EndgameMaterial    int     `yaml:"endgame_material" env:"PHASE_ENDGAME_MATERIAL" env-default:"26"`
	AccuracyDivisor    float64 `yaml:"accuracy_divisor" env:"ACCURACY_DIVISOR" env-default:"10"`
	CriticalCPL        int     `yaml:"critical_cpl" env:"CRITICAL_CPL" env-default:"150"`
	OpeningSearchPlies int     `yaml:"opening_search_plies" env:"OPENING_SEARCH_PLIES" env-default:"30"`
	// ECODir adds .tsv opening files on top of the bundled table.
	ECODir string `yaml:"eco_dir" env:"ECO_DIR" env-default:""`
}

// SchedulerConfig sizes the worker pool.
type SchedulerConfig struct {
	Workers   int           `yaml:"workers" env:"WORKERS" env-default:"2"`
	RetainFor time.Duration `yaml:"retain_for" env:"BATCH_RETAIN_FOR" env-default:"1h"`
}

// TierConfig configures the free trial.
type TierConfig struct {
	FreeLimit   int `yaml:"free_limit" env:"FREE_AI_LIMIT" env-default:"5"`
	RaceRetries int `yaml:"race_retries" env:"QUOTA_RACE_RETRIES" env-default:"3"`
}

// DatabaseConfig selects the store. Driver "memory" keeps everything in
// process.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	DSN             string        `yaml:"dsn" env:"DB_DSN" env-default:"./data/analysis.db"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
	LogLevel        string        `yaml:"log_level" env:"DB_LOG_LEVEL" env-default:"warn"`
}

// SweepConfig controls the periodic engine-only pass over unanalysed games.
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled" env:"SWEEP_ENABLED" env-default:"false"`
	Interval time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"15m"`
	Days     int           `yaml:"days" env:"SWEEP_DAYS" env-default:"7"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	JSON  bool   `yaml:"json" env:"LOG_JSON" env-default:"false"`
}

// Load reads path if it exists, then the environment. A .env file in the
// working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			return cfg, cfg.Validate()
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	a := c.Analysis
	if !(0 <= a.BestMax && a.BestMax < a.ExcellentMax && a.ExcellentMax < a.GoodMax &&
		a.GoodMax < a.InaccuracyMax && a.InaccuracyMax < a.MistakeMax) {
		return fmt.Errorf("classification thresholds must be ascending: %d/%d/%d/%d/%d",
			a.BestMax, a.ExcellentMax, a.GoodMax, a.InaccuracyMax, a.MistakeMax)
	}
	if a.AccuracyDivisor <= 0 {
		return fmt.Errorf("accuracy divisor must be positive")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler needs at least one worker")
	}
	if c.Tier.FreeLimit < 0 {
		return fmt.Errorf("free limit must not be negative")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "memory", "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}
