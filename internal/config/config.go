package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	Listen     string     `yaml:"listen"`
	Admin      Admin      `yaml:"admin"`
	Logger     Logger     `yaml:"logger"`
	Storage    Storage    `yaml:"storage"`
	Auth       Auth       `yaml:"auth"`
	CORS       CORS       `yaml:"cors"`
	Codeforces Codeforces `yaml:"codeforces"`
	Round1     Round1     `yaml:"round1"`
	Round2     Round2     `yaml:"round2"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Poller     Poller     `yaml:"poller"`
	Seed       string     `yaml:"seed"`
}

type Logger struct {
	Level string `yaml:"level"`
}

type Storage struct {
	// Driver is either "sqlite" or "postgres".
	Driver   string `yaml:"driver"`
	Database string `yaml:"database"`
}

type Auth struct {
	JWT JWT `yaml:"jwt"`
}

type JWT struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire_hours"`
}

type Admin struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   string `yaml:"token"`
}

type Codeforces struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MinInterval time.Duration `yaml:"min_interval"`
	Burst       int           `yaml:"burst"`
	Concurrency int           `yaml:"concurrency"`
}

// Score modes for Round 1.
const (
	ScoreModeLineBonus = "line_bonus"
	ScoreModeAdditive  = "additive"
)

type Round1 struct {
	PointsPerProblem int    `yaml:"points_per_problem"`
	BingoBonus       int    `yaml:"bingo_bonus"`
	ScoreMode        string `yaml:"score_mode"`
}

type Round2 struct {
	InitialScore  int `yaml:"initial_score"`
	WinThreshold  int `yaml:"win_threshold"`
	PointsCorrect int `yaml:"points_correct"`
	PointsWrong   int `yaml:"points_wrong"`
	Duration      int `yaml:"duration"`
}

type Window struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type RateLimit struct {
	Round1Sync Window `yaml:"round1_sync"`
	Round2Sync Window `yaml:"round2_sync"`
	Login      Bucket `yaml:"login"`
}

// Bucket is a token bucket refilled at PerMinute tokens a minute.
type Bucket struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

type Poller struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns a configuration with every value the service relies on filled in.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Admin: Admin{
			Listen: "127.0.0.1:8081",
		},
		Logger: Logger{Level: "info"},
		Storage: Storage{
			Driver:   "sqlite",
			Database: "data/cfbingo.db",
		},
		Auth: Auth{
			JWT: JWT{ExpireHours: 24},
		},
		Codeforces: Codeforces{
			BaseURL:     "https://codeforces.com/api",
			Timeout:     10 * time.Second,
			MaxRetries:  3,
			RetryDelay:  time.Second,
			MinInterval: 500 * time.Millisecond,
			Burst:       1,
			Concurrency: 4,
		},
		Round1: Round1{
			PointsPerProblem: 10,
			BingoBonus:       60,
			ScoreMode:        ScoreModeLineBonus,
		},
		Round2: Round2{
			InitialScore:  50,
			WinThreshold:  75,
			PointsCorrect: 10,
			PointsWrong:   -5,
			Duration:      2700,
		},
		RateLimit: RateLimit{
			Round1Sync: Window{Limit: 5, Window: time.Minute},
			Round2Sync: Window{Limit: 10, Window: time.Minute},
			Login:      Bucket{PerMinute: 20, Burst: 5},
		},
		Poller: Poller{
			Interval: 30 * time.Second,
		},
	}
}

// Load reads the YAML file at path on top of Default, then applies environment
// overrides. A .env file in the working directory is honoured if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CFBINGO_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CFBINGO_DATABASE"); v != "" {
		cfg.Storage.Database = v
	}
	if v := os.Getenv("CFBINGO_DB_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("CFBINGO_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
	if v := os.Getenv("CFBINGO_ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("CFBINGO_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}
