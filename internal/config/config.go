package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Vision      VisionConfig      `yaml:"vision"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Behavior    BehaviorConfig    `yaml:"behavior"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AttendanceConfig points at the FacePass backend that records attendance.
// An empty BaseURL disables attendance marking entirely.
type AttendanceConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
}

// RecognitionConfig controls the identity resolution state machine.
type RecognitionConfig struct {
	// SimThreshold is the cosine-distance ceiling for a positive match.
	SimThreshold float64 `yaml:"sim_threshold"`
	// EmbedInterval is the number of frames between re-embeddings per track.
	EmbedInterval int `yaml:"embed_interval"`
	// HistoryWindow is the confidence smoothing window length.
	HistoryWindow int `yaml:"history_window"`
	// CropPadding is the pixel margin added around a face crop.
	CropPadding int `yaml:"crop_padding"`
	// CacheCapacity bounds the track embedding LRU cache.
	CacheCapacity int `yaml:"cache_capacity"`
}

type TrackingConfig struct {
	// MaxMisses is the number of consecutive unmatched frames before a
	// track is retired from the store.
	MaxMisses int `yaml:"max_misses"`
	// MinIoU gates association: pairs below this overlap are never matched.
	MinIoU float64 `yaml:"min_iou"`
}

type BehaviorConfig struct {
	YawThreshold   float64 `yaml:"yaw_threshold"`
	PitchThreshold float64 `yaml:"pitch_threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	SetDefaults(cfg)

	return cfg, nil
}

// SetDefaults fills zero-valued fields with production defaults.
func SetDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Attendance.Timeout == 0 {
		cfg.Attendance.Timeout = 5 * time.Second
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Recognition.SimThreshold == 0 {
		cfg.Recognition.SimThreshold = 0.45
	}
	if cfg.Recognition.EmbedInterval == 0 {
		cfg.Recognition.EmbedInterval = 15
	}
	if cfg.Recognition.HistoryWindow == 0 {
		cfg.Recognition.HistoryWindow = 5
	}
	if cfg.Recognition.CropPadding == 0 {
		cfg.Recognition.CropPadding = 30
	}
	if cfg.Recognition.CacheCapacity == 0 {
		cfg.Recognition.CacheCapacity = 256
	}
	if cfg.Tracking.MaxMisses == 0 {
		cfg.Tracking.MaxMisses = 30
	}
	if cfg.Tracking.MinIoU == 0 {
		cfg.Tracking.MinIoU = 0.1
	}
	if cfg.Behavior.YawThreshold == 0 {
		cfg.Behavior.YawThreshold = 20.0
	}
	if cfg.Behavior.PitchThreshold == 0 {
		cfg.Behavior.PitchThreshold = -10.0
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FP_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FP_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FP_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FP_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FP_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FP_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FP_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FP_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FP_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FP_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FP_ATTENDANCE_URL"); v != "" {
		cfg.Attendance.BaseURL = v
	}
	if v := os.Getenv("FP_ATTENDANCE_API_KEY"); v != "" {
		cfg.Attendance.APIKey = v
	}
	if v := os.Getenv("FP_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FP_SIM_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.SimThreshold = f
		}
	}
	if v := os.Getenv("FP_EMBED_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recognition.EmbedInterval = n
		}
	}
}
