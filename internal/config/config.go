package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Telegram struct {
		Token   string `yaml:"token"` // env TELEGRAM_TOKEN wins when set
		AdminID int64  `yaml:"admin_id"`
	} `yaml:"telegram"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Storage struct {
		ParticipantsFile string `yaml:"participants_file"`
		QuestionsFile    string `yaml:"questions_file"`
		SeasonFile       string `yaml:"season_file"`
	} `yaml:"storage"`
	Quiz struct {
		Interval    string `yaml:"interval"`  // between broadcast rounds
		RoundTTL    string `yaml:"round_ttl"` // lazy expiry window
		ActiveFrom  string `yaml:"active_from"`
		ActiveUntil string `yaml:"active_until"`
		CacheTTL    string `yaml:"cache_ttl"`
	} `yaml:"quiz"`
	Scoring struct {
		PointsPerCorrect int `yaml:"points_per_correct"`
		StartingPoints   int `yaml:"starting_points"`
		StreakLength     int `yaml:"streak_length"`
		StreakBonus      int `yaml:"streak_bonus"`
		MissPenalty      int `yaml:"miss_penalty"` // 0 disables; floored at 0 points
		LevelBase        int `yaml:"level_base"`
		LevelStep        int `yaml:"level_step"`
	} `yaml:"scoring"`
	Season struct {
		Mode     string `yaml:"mode"`     // "quarter" or "interval"
		Interval string `yaml:"interval"` // used in interval mode
		Bonus    []int  `yaml:"bonus"`    // top-N bonus ladder
	} `yaml:"season"`
	Weekly struct {
		Enabled bool  `yaml:"enabled"`
		Bonus   []int `yaml:"bonus"`
	} `yaml:"weekly"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ClockTime parses an "HH:MM" wall-clock string or returns the fallback.
func ClockTime(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse("15:04", raw); err == nil {
		return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	}
	return fallback
}
