package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server ServerConfig
	Steps  StepsConfig
	Runway RunwayConfig
	OpenAI OpenAIConfig
	FFmpeg FFmpegConfig
	R2     R2Config
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// StepsConfig bounds step-handler execution. All durations are seconds.
type StepsConfig struct {
	RunwayTimeout   int
	FFmpegTimeout   int
	WhisperTimeout  int
	AnalysisTimeout int
	CustomTimeout   int
	PollInterval    int
}

func (c StepsConfig) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

type RunwayConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	WhisperModel string
	GPTModel     string
}

type FFmpegConfig struct {
	Enabled    bool
	Path       string
	Format     string
	Codec      string
	Preset     string
	Resolution string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("RUNWAY_API_KEY")
	readSecret("OPENAI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("steps.runway_timeout", "STEP_RUNWAY_TIMEOUT")
	_ = viper.BindEnv("steps.ffmpeg_timeout", "STEP_FFMPEG_TIMEOUT")
	_ = viper.BindEnv("steps.whisper_timeout", "STEP_WHISPER_TIMEOUT")
	_ = viper.BindEnv("steps.analysis_timeout", "STEP_ANALYSIS_TIMEOUT")
	_ = viper.BindEnv("steps.custom_timeout", "STEP_CUSTOM_TIMEOUT")
	_ = viper.BindEnv("steps.poll_interval", "STEP_POLL_INTERVAL")
	_ = viper.BindEnv("runway.api_key", "RUNWAY_API_KEY")
	_ = viper.BindEnv("runway.base_url", "RUNWAY_BASE_URL")
	_ = viper.BindEnv("runway.model", "RUNWAY_MODEL")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.whisper_model", "OPENAI_WHISPER_MODEL")
	_ = viper.BindEnv("openai.gpt_model", "OPENAI_GPT_MODEL")
	_ = viper.BindEnv("ffmpeg.enabled", "FFMPEG_ENABLED")
	_ = viper.BindEnv("ffmpeg.path", "FFMPEG_PATH")
	_ = viper.BindEnv("ffmpeg.format", "FFMPEG_FORMAT")
	_ = viper.BindEnv("ffmpeg.codec", "FFMPEG_CODEC")
	_ = viper.BindEnv("ffmpeg.preset", "FFMPEG_PRESET")
	_ = viper.BindEnv("ffmpeg.resolution", "FFMPEG_RESOLUTION")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")

	// Step execution bounds. Runway gets the longest bound: the original
	// flow downloads the source video and then polls a long-running task.
	viper.SetDefault("steps.runway_timeout", 600)
	viper.SetDefault("steps.ffmpeg_timeout", 300)
	viper.SetDefault("steps.whisper_timeout", 120)
	viper.SetDefault("steps.analysis_timeout", 60)
	viper.SetDefault("steps.custom_timeout", 30)
	viper.SetDefault("steps.poll_interval", 5)

	// Runway defaults
	viper.SetDefault("runway.base_url", "https://api.runwayml.com/v1")
	viper.SetDefault("runway.model", "gen4_video")

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.whisper_model", "whisper-1")
	viper.SetDefault("openai.gpt_model", "gpt-4")

	// FFmpeg defaults
	viper.SetDefault("ffmpeg.enabled", false)
	viper.SetDefault("ffmpeg.path", "ffmpeg")
	viper.SetDefault("ffmpeg.format", "mp4")
	viper.SetDefault("ffmpeg.codec", "libx264")
	viper.SetDefault("ffmpeg.preset", "medium")
	viper.SetDefault("ffmpeg.resolution", "1920x1080")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Steps: StepsConfig{
			RunwayTimeout:   viper.GetInt("steps.runway_timeout"),
			FFmpegTimeout:   viper.GetInt("steps.ffmpeg_timeout"),
			WhisperTimeout:  viper.GetInt("steps.whisper_timeout"),
			AnalysisTimeout: viper.GetInt("steps.analysis_timeout"),
			CustomTimeout:   viper.GetInt("steps.custom_timeout"),
			PollInterval:    viper.GetInt("steps.poll_interval"),
		},
		Runway: RunwayConfig{
			APIKey:  viper.GetString("runway.api_key"),
			BaseURL: viper.GetString("runway.base_url"),
			Model:   viper.GetString("runway.model"),
		},
		OpenAI: OpenAIConfig{
			APIKey:       viper.GetString("openai.api_key"),
			BaseURL:      viper.GetString("openai.base_url"),
			WhisperModel: viper.GetString("openai.whisper_model"),
			GPTModel:     viper.GetString("openai.gpt_model"),
		},
		FFmpeg: FFmpegConfig{
			Enabled:    viper.GetBool("ffmpeg.enabled"),
			Path:       viper.GetString("ffmpeg.path"),
			Format:     viper.GetString("ffmpeg.format"),
			Codec:      viper.GetString("ffmpeg.codec"),
			Preset:     viper.GetString("ffmpeg.preset"),
			Resolution: viper.GetString("ffmpeg.resolution"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
	}

	return cfg, nil
}
