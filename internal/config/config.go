package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Log      LogConfig      `toml:"log"`
	Vision   VisionConfig   `toml:"vision"`
	Upload   UploadConfig   `toml:"upload"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// VisionConfig describes the model artifact. InputSize and Threshold belong
// to the trained artifact and must change together with it.
type VisionConfig struct {
	ModelPath         string  `toml:"model_path"`
	ONNXSharedLibPath string  `toml:"onnx_shared_lib_path"`
	InputSize         int     `toml:"input_size"`
	Threshold         float64 `toml:"threshold"`
}

type UploadConfig struct {
	Dir               string   `toml:"dir"`
	MaxBytes          int64    `toml:"max_bytes"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

// RedisConfig enables the prediction cache when Addr is set.
type RedisConfig struct {
	Addr                 string `toml:"addr"`
	Password             string `toml:"password"`
	DB                   int    `toml:"db"`
	PredictionTTLSeconds int    `toml:"prediction_ttl_seconds"`
}

// RabbitMQConfig routes prediction events through a queue when URL is set.
type RabbitMQConfig struct {
	URL                  string `toml:"url"`
	PredictionEventQueue string `toml:"prediction_event_queue"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) Validate() error {
	if c.Vision.ModelPath == "" {
		return fmt.Errorf("vision.model_path is required")
	}
	if c.Vision.InputSize <= 0 {
		return fmt.Errorf("vision.input_size must be positive, got %d", c.Vision.InputSize)
	}
	if c.Vision.Threshold < 0 || c.Vision.Threshold > 1 {
		return fmt.Errorf("vision.threshold must be within [0,1], got %v", c.Vision.Threshold)
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("upload.dir is required")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("upload.allowed_extensions is empty")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "facemask-api",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    5000,
			GinMode: "debug",
		},
		Log: LogConfig{
			Level: "info",
		},
		Vision: VisionConfig{
			ModelPath:         "assets/facemask_detection_model.onnx",
			ONNXSharedLibPath: "", // use default or set via VISION_ONNX_LIB
			InputSize:         120,
			Threshold:         0.5,
		},
		Upload: UploadConfig{
			Dir:               "uploads",
			MaxBytes:          16 << 20,
			AllowedExtensions: []string{"png", "jpg", "jpeg"},
		},
		Redis: RedisConfig{
			Addr:                 "",
			DB:                   0,
			PredictionTTLSeconds: 600,
		},
		RabbitMQ: RabbitMQConfig{
			URL:                  "",
			PredictionEventQueue: "facemask.prediction.events",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Vision.ModelPath = getEnv("VISION_MODEL_PATH", cfg.Vision.ModelPath)
	cfg.Vision.ONNXSharedLibPath = getEnv("VISION_ONNX_LIB", cfg.Vision.ONNXSharedLibPath)
	cfg.Vision.InputSize = getEnvAsInt("VISION_INPUT_SIZE", cfg.Vision.InputSize)
	cfg.Vision.Threshold = getEnvAsFloat("VISION_THRESHOLD", cfg.Vision.Threshold)

	cfg.Upload.Dir = getEnv("UPLOAD_DIR", cfg.Upload.Dir)
	cfg.Upload.MaxBytes = int64(getEnvAsInt("UPLOAD_MAX_BYTES", int(cfg.Upload.MaxBytes)))
	if raw, ok := os.LookupEnv("UPLOAD_ALLOWED_EXTENSIONS"); ok && raw != "" {
		cfg.Upload.AllowedExtensions = splitList(raw)
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PredictionTTLSeconds = getEnvAsInt("REDIS_PREDICTION_TTL_SECONDS", cfg.Redis.PredictionTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.PredictionEventQueue = getEnv("RABBITMQ_PREDICTION_EVENT_QUEUE", cfg.RabbitMQ.PredictionEventQueue)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
