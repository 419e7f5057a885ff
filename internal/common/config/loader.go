// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like GEMINI_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment specific overlay
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from any of the usual locations.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig applies direct environment overrides for values that are
// still empty after expansion. PORT is the deployment contract: the server must
// bind whatever the platform injects.
func overrideEmptyConfig(cfg *Config) {
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}

	if cfg.APIs.Gemini.APIKey == "" {
		if val := os.Getenv("GEMINI_API_KEY"); val != "" {
			cfg.APIs.Gemini.APIKey = val
		}
	}

	if len(cfg.APIs.Render.APIKeys) == 0 {
		if val := os.Getenv("RENDER_API_KEYS"); val != "" {
			for _, key := range strings.Split(val, ",") {
				if key = strings.TrimSpace(key); key != "" {
					cfg.APIs.Render.APIKeys = append(cfg.APIs.Render.APIKeys, key)
				}
			}
		}
	}

	if cfg.APIs.ElevenLabs.APIKey == "" {
		if val := os.Getenv("ELEVENLABS_API_KEY"); val != "" {
			cfg.APIs.ElevenLabs.APIKey = val
		}
	}

	// Database overrides
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}
	if cfg.Server.MaxConcurrentJobs == 0 {
		cfg.Server.MaxConcurrentJobs = 8
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// API defaults
	if cfg.APIs.Gemini.BaseURL == "" {
		cfg.APIs.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.APIs.Gemini.Model == "" {
		cfg.APIs.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.APIs.Gemini.Timeout == 0 {
		cfg.APIs.Gemini.Timeout = 60000
	}
	if cfg.APIs.Render.BaseURL == "" {
		cfg.APIs.Render.BaseURL = "https://api.deapi.ai"
	}
	if cfg.APIs.Render.Model == "" {
		cfg.APIs.Render.Model = "Ltxv_13B_0_9_8_Distilled_FP8"
	}
	if cfg.APIs.Render.Motion == "" {
		cfg.APIs.Render.Motion = "cinematic"
	}
	if cfg.APIs.Render.Timeout == 0 {
		cfg.APIs.Render.Timeout = 60000
	}
	if cfg.APIs.Render.PollInterval == 0 {
		cfg.APIs.Render.PollInterval = 5000
	}
	if cfg.APIs.Render.RetryDelay == 0 {
		cfg.APIs.Render.RetryDelay = 20000
	}
	if cfg.APIs.ElevenLabs.BaseURL == "" {
		cfg.APIs.ElevenLabs.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.APIs.ElevenLabs.ModelID == "" {
		cfg.APIs.ElevenLabs.ModelID = "eleven_multilingual_v2"
	}
	if cfg.APIs.ElevenLabs.Stability == 0 {
		cfg.APIs.ElevenLabs.Stability = 0.6
	}
	if cfg.APIs.ElevenLabs.SimilarityBoost == 0 {
		cfg.APIs.ElevenLabs.SimilarityBoost = 0.7
	}
	if cfg.APIs.ElevenLabs.Timeout == 0 {
		cfg.APIs.ElevenLabs.Timeout = 60000
	}

	// Media defaults: 9:16 vertical output
	if cfg.Media.Width == 0 {
		cfg.Media.Width = 432
	}
	if cfg.Media.Height == 0 {
		cfg.Media.Height = 768
	}
	if cfg.Media.FPS == 0 {
		cfg.Media.FPS = 30
	}
	if cfg.Media.Frames == 0 {
		cfg.Media.Frames = 120
	}
	if cfg.Media.Steps == 0 {
		cfg.Media.Steps = 1
	}
	if cfg.Media.Guidance == 0 {
		cfg.Media.Guidance = 8
	}
	if cfg.Media.SceneDelay == 0 {
		cfg.Media.SceneDelay = 20000
	}
	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}
	if cfg.Media.FFprobePath == "" {
		cfg.Media.FFprobePath = "ffprobe"
	}
	if cfg.Media.WhisperPath == "" {
		cfg.Media.WhisperPath = "whisper"
	}
	if cfg.Media.WhisperModel == "" {
		cfg.Media.WhisperModel = "small"
	}

	// Caption defaults
	if cfg.Captions.MaxWordsPerCue == 0 {
		cfg.Captions.MaxWordsPerCue = 3
	}
	if cfg.Captions.FontName == "" {
		cfg.Captions.FontName = "Arial"
	}
	if cfg.Captions.FontSize == 0 {
		cfg.Captions.FontSize = 40
	}
	if cfg.Captions.FontColor == "" {
		cfg.Captions.FontColor = "white"
	}
	if cfg.Captions.OutlineColor == "" {
		cfg.Captions.OutlineColor = "black"
	}
	if cfg.Captions.OutlineWidth == 0 {
		cfg.Captions.OutlineWidth = 2
	}
	if cfg.Captions.MarginV == 0 {
		cfg.Captions.MarginV = 60
	}

	// Storage defaults
	if cfg.Storage.StaticDir == "" {
		cfg.Storage.StaticDir = "static"
	}
	if cfg.Storage.TempDir == "" {
		cfg.Storage.TempDir = "temp_storage"
	}

	// Auth defaults
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 7 * 24 * 60 * 60 * 1000
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 10
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Media.Width%2 != 0 || cfg.Media.Height%2 != 0 {
		return fmt.Errorf("media.width and media.height must be even for H.264 output")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
