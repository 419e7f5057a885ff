// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	APIs     APIsConfig     `mapstructure:"apis"`
	Media    MediaConfig    `mapstructure:"media"`
	Captions CaptionsConfig `mapstructure:"captions"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port              int `mapstructure:"port"`
	RequestTimeout    int `mapstructure:"request_timeout"`     // milliseconds
	ShutdownTimeout   int `mapstructure:"shutdown_timeout"`    // milliseconds
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"` // render pipeline slots
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	Gemini struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"gemini"`

	Render struct {
		BaseURL      string   `mapstructure:"base_url"`
		APIKeys      []string `mapstructure:"api_keys"`
		Model        string   `mapstructure:"model"`
		Motion       string   `mapstructure:"motion"`
		Timeout      int      `mapstructure:"timeout"`       // milliseconds, per HTTP call
		PollInterval int      `mapstructure:"poll_interval"` // milliseconds
		RetryDelay   int      `mapstructure:"retry_delay"`   // milliseconds, base for rate-limit backoff
	} `mapstructure:"render"`

	ElevenLabs struct {
		BaseURL         string  `mapstructure:"base_url"`
		APIKey          string  `mapstructure:"api_key"`
		VoiceID         string  `mapstructure:"voice_id"`
		ModelID         string  `mapstructure:"model_id"`
		Stability       float64 `mapstructure:"stability"`
		SimilarityBoost float64 `mapstructure:"similarity_boost"`
		Timeout         int     `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"elevenlabs"`
}

// MediaConfig holds settings for video rendering and the external media tools.
type MediaConfig struct {
	Width        int    `mapstructure:"width"`
	Height       int    `mapstructure:"height"`
	FPS          int    `mapstructure:"fps"`
	Frames       int    `mapstructure:"frames"`
	Steps        int    `mapstructure:"steps"`
	Guidance     int    `mapstructure:"guidance"`
	SceneDelay   int    `mapstructure:"scene_delay"` // milliseconds between consecutive scene renders
	FFmpegPath   string `mapstructure:"ffmpeg_path"`
	FFprobePath  string `mapstructure:"ffprobe_path"`
	WhisperPath  string `mapstructure:"whisper_path"`
	WhisperModel string `mapstructure:"whisper_model"`
}

// CaptionsConfig holds subtitle styling settings.
type CaptionsConfig struct {
	MaxWordsPerCue int    `mapstructure:"max_words_per_cue"`
	FontName       string `mapstructure:"font_name"`
	FontSize       int    `mapstructure:"font_size"`
	FontColor      string `mapstructure:"font_color"`
	OutlineColor   string `mapstructure:"outline_color"`
	OutlineWidth   int    `mapstructure:"outline_width"`
	MarginV        int    `mapstructure:"margin_v"`
}

// StorageConfig holds scratch directory locations.
type StorageConfig struct {
	StaticDir string `mapstructure:"static_dir"`
	TempDir   string `mapstructure:"temp_dir"`
}

// AuthConfig holds session and password hashing settings.
type AuthConfig struct {
	SessionTTL int `mapstructure:"session_ttl"` // milliseconds
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
