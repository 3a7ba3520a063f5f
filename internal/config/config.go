package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port          string   `yaml:"port" env:"PORT" env-default:"8080"`
	DBPath        string   `yaml:"db_path" env:"DB_PATH" env-default:"./data/studysprint.db"`
	MigrationsDir string   `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"./migrations"`
	CORSOrigins   []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://127.0.0.1:5173"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`

	// Timer policy. The tick interval is configurable so local runs can
	// compress time; classification thresholds are plain seconds because the
	// accumulator math is in whole seconds.
	TickInterval          time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL" env-default:"1s"`
	IdleThresholdSeconds  int           `yaml:"idle_threshold_seconds" env:"IDLE_THRESHOLD_SECONDS" env-default:"60"`
	AutoEndIdleSeconds    int           `yaml:"auto_end_idle_seconds" env:"AUTO_END_IDLE_SECONDS" env-default:"14400"`
	CheckpointSeconds     int           `yaml:"checkpoint_seconds" env:"CHECKPOINT_SECONDS" env-default:"30"`
	ActivityThrottle      time.Duration `yaml:"activity_throttle" env:"ACTIVITY_THROTTLE" env-default:"1s"`
	PersistQueueSize      int           `yaml:"persist_queue_size" env:"PERSIST_QUEUE_SIZE" env-default:"256"`
	PersistRetryAttempts  int           `yaml:"persist_retry_attempts" env:"PERSIST_RETRY_ATTEMPTS" env-default:"3"`
	PersistRetryBaseDelay time.Duration `yaml:"persist_retry_base_delay" env:"PERSIST_RETRY_BASE_DELAY" env-default:"250ms"`
}

// Load reads configuration from the given YAML file, or from environment
// variables alone when path is empty. Environment variables override file
// values either way.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env config: %w", err)
	}
	return cfg, nil
}
