// Package config loads the voicegate configuration file.
//
// The file is YAML. Every option has a default, so an empty or missing file
// yields a working engine; a file only needs the options it changes.
// Secrets never live in the file: the token signing secret comes from
// VOICEGATE_TOKEN_SECRET, optionally set through a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/storage"
	"github.com/haivivi/voicegate/pkg/vad"
)

// EnvTokenSecret names the environment variable holding the token secret.
const EnvTokenSecret = "VOICEGATE_TOKEN_SECRET"

// Config is the complete engine and service configuration.
type Config struct {
	Audio        AudioConfig        `yaml:"audio"`
	VAD          VADConfig          `yaml:"vad"`
	Enrollment   EnrollmentConfig   `yaml:"enrollment"`
	Verification VerificationConfig `yaml:"verification"`
	Deepfake     DeepfakeConfig     `yaml:"deepfake"`
	Storage      StorageConfig      `yaml:"storage"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`

	// TokenSecret is read from the environment, never from the file.
	TokenSecret string `yaml:"-"`
}

// AudioConfig sets the engine sample rate. Input at other rates is
// resampled.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
}

// VADConfig mirrors vad.Config with file-friendly units.
type VADConfig struct {
	FrameMS         int     `yaml:"frame_ms"`
	HopMS           int     `yaml:"hop_ms"`
	NoisePercentile float64 `yaml:"noise_percentile"`
	NoiseMultiplier float64 `yaml:"noise_multiplier"`
	PeakRatio       float64 `yaml:"peak_ratio"`
	EnergyFloor     float64 `yaml:"energy_floor"`
}

// EnrollmentConfig is the profile threshold policy.
type EnrollmentConfig struct {
	MinSamples int     `yaml:"min_enrollment_samples"`
	ThresholdK float64 `yaml:"threshold_k"`
	Floor      float64 `yaml:"threshold_floor"`
	Ceiling    float64 `yaml:"threshold_ceiling"`
}

// VerificationConfig holds the decision constants.
type VerificationConfig struct {
	FakeConfidenceThreshold float64 `yaml:"fake_confidence_threshold"`
	MinSpeechSeconds        float64 `yaml:"min_speech_duration_seconds"`
}

// DeepfakeConfig selects the classifier weights. WeightsFile is a local
// path or an s3://bucket/key URI; empty uses the built-in weights.
type DeepfakeConfig struct {
	WeightsFile string `yaml:"weights_file"`
}

// StorageConfig selects the profile persistence backend.
type StorageConfig struct {
	Driver string   `yaml:"driver"`
	Dir    string   `yaml:"dir"`
	S3     S3Config `yaml:"s3"`
}

// S3Config is the object store used for s3:// locations (weights files,
// profile exports). Credentials come from AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`

	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
	SessionToken    string `yaml:"-"`
}

// ServerConfig configures `voicegate serve`.
type ServerConfig struct {
	Address     string        `yaml:"address"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	TokenIssuer string        `yaml:"token_issuer"`
	MaxUpload   int64         `yaml:"max_upload_bytes"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the shipped configuration.
func Default() *Config {
	pol := profile.DefaultPolicy()
	return &Config{
		Audio: AudioConfig{SampleRate: 16000},
		VAD: VADConfig{
			FrameMS:         20,
			HopMS:           20,
			NoisePercentile: 0.1,
			NoiseMultiplier: 4.0,
			PeakRatio:       0.01,
			EnergyFloor:     1e-6,
		},
		Enrollment: EnrollmentConfig{
			MinSamples: pol.MinSamples,
			ThresholdK: pol.K,
			Floor:      pol.Floor,
			Ceiling:    pol.Ceiling,
		},
		Verification: VerificationConfig{
			FakeConfidenceThreshold: 0.70,
			MinSpeechSeconds:        0.5,
		},
		Storage: StorageConfig{
			Driver: "badger",
			S3:     S3Config{Region: "us-east-1"},
		},
		Server: ServerConfig{
			Address:     ":8080",
			TokenTTL:    5 * time.Minute,
			TokenIssuer: "voicegate",
			MaxUpload:   32 << 20,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and validates the result. A missing
// file is not an error when path is empty. A .env file in the working
// directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := cfg.Parse(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.TokenSecret = os.Getenv(EnvTokenSecret)
	cfg.Storage.S3.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Storage.S3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.Storage.S3.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse overlays YAML data on c.
func (c *Config) Parse(data []byte) error {
	if err := yaml.UnmarshalWithOptions(data, c, yaml.Strict()); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 48000 {
		return fmt.Errorf("config: audio.sample_rate must be in [8000, 48000], got %d", c.Audio.SampleRate)
	}
	if err := c.VADConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("config: enrollment: %w", err)
	}
	if err := c.Verification.Validate(); err != nil {
		return fmt.Errorf("config: verification: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("config: storage: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config: server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config: logging: %w", err)
	}
	return nil
}

// Validate checks the decision constants.
func (v *VerificationConfig) Validate() error {
	if v.FakeConfidenceThreshold <= 0 || v.FakeConfidenceThreshold > 1 {
		return fmt.Errorf("fake_confidence_threshold must be in (0, 1], got %g", v.FakeConfidenceThreshold)
	}
	if v.MinSpeechSeconds <= 0 {
		return fmt.Errorf("min_speech_duration_seconds must be positive, got %g", v.MinSpeechSeconds)
	}
	return nil
}

// Validate checks the storage driver.
func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case "memory", "badger":
	default:
		return fmt.Errorf("driver must be 'badger' or 'memory', got %q", s.Driver)
	}
	if s.S3.Region == "" {
		return errors.New("s3.region cannot be empty")
	}
	return nil
}

// Validate checks the server options.
func (s *ServerConfig) Validate() error {
	if s.Address == "" {
		return errors.New("address cannot be empty")
	}
	if s.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", s.TokenTTL)
	}
	if s.MaxUpload < 1<<10 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", s.MaxUpload)
	}
	return nil
}

// Validate checks level and format names.
func (l *LoggingConfig) Validate() error {
	if _, err := l.SlogLevel(); err != nil {
		return err
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("format must be 'text' or 'json', got %q", l.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l *LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("level must be debug, info, warn or error, got %q", l.Level)
	}
	return level, nil
}

// VADConfig converts the vad section.
func (c *Config) VADConfig() vad.Config {
	return vad.Config{
		SampleRate:      c.Audio.SampleRate,
		FrameDuration:   time.Duration(c.VAD.FrameMS) * time.Millisecond,
		HopDuration:     time.Duration(c.VAD.HopMS) * time.Millisecond,
		NoisePercentile: c.VAD.NoisePercentile,
		NoiseMultiplier: c.VAD.NoiseMultiplier,
		PeakRatio:       c.VAD.PeakRatio,
		EnergyFloor:     c.VAD.EnergyFloor,
	}
}

// Policy converts the enrollment section.
func (c *Config) Policy() profile.Policy {
	return profile.Policy{
		MinSamples: c.Enrollment.MinSamples,
		K:          c.Enrollment.ThresholdK,
		Floor:      c.Enrollment.Floor,
		Ceiling:    c.Enrollment.Ceiling,
	}
}

// ObjectStore returns the resolver for asset locations.
func (c *Config) ObjectStore() storage.Resolver {
	s3 := c.Storage.S3
	return storage.Resolver{S3: storage.NewS3Client(storage.S3Config{
		Region:          s3.Region,
		Endpoint:        s3.Endpoint,
		PathStyle:       s3.PathStyle,
		AccessKeyID:     s3.AccessKeyID,
		SecretAccessKey: s3.SecretAccessKey,
		SessionToken:    s3.SessionToken,
	})}
}

// MinSpeech returns the minimum active speech duration.
func (c *Config) MinSpeech() time.Duration {
	return time.Duration(c.Verification.MinSpeechSeconds * float64(time.Second))
}

// NewLogger builds the slog logger described by the logging section.
// verbose forces debug level.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := c.Logging.SlogLevel()
	switch {
	case verbose:
		level = slog.LevelDebug
	case err != nil:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
