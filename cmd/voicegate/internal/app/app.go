// Package app wires the voicegate engine from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haivivi/voicegate/pkg/config"
	"github.com/haivivi/voicegate/pkg/deepfake"
	"github.com/haivivi/voicegate/pkg/kv"
	"github.com/haivivi/voicegate/pkg/metrics"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/server"
	"github.com/haivivi/voicegate/pkg/storage"
	"github.com/haivivi/voicegate/pkg/token"
	"github.com/haivivi/voicegate/pkg/vad"
	"github.com/haivivi/voicegate/pkg/verify"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// App holds every engine component built from one configuration.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	KV         kv.Store
	Detector   *vad.Detector
	Extractor  voiceprint.Extractor
	Classifier deepfake.Classifier
	Profiles   *profile.Store
	Verifier   *verify.Verifier
	Enroller   *verify.Enroller
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics

	// Assets reads and writes weights files and profile exports.
	Assets storage.Resolver

	// Issuer is nil when no token secret is configured.
	Issuer *token.Issuer
}

// New builds the engine. Close releases the storage.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Assets: cfg.ObjectStore()}

	det, err := vad.New(cfg.VADConfig())
	if err != nil {
		return nil, err
	}
	a.Detector = det

	rate := cfg.Audio.SampleRate
	minSpeech := cfg.MinSpeech()
	a.Extractor = voiceprint.NewCepstralExtractor(rate, voiceprint.WithCepstralMinSpeech(minSpeech))

	weights := deepfake.DefaultWeights()
	if uri := cfg.Deepfake.WeightsFile; uri != "" {
		data, err := a.Assets.ReadFile(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("load deepfake weights: %w", err)
		}
		if weights, err = deepfake.ParseWeights(data); err != nil {
			return nil, fmt.Errorf("%s: %w", uri, err)
		}
		logger.Debug("deepfake weights loaded", "location", uri, "version", weights.Version)
	}
	cls, err := deepfake.NewSpectralClassifier(rate, deepfake.WithWeights(weights), deepfake.WithMinSpeech(minSpeech))
	if err != nil {
		return nil, err
	}
	a.Classifier = cls

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	store, err := kv.Open(cfg.Storage.Driver, cfg.Storage.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.KV = store

	pol := cfg.Policy()
	a.Profiles, err = profile.NewStore(profile.StoreConfig{
		KV:        store,
		Model:     a.Extractor.Model(),
		Dimension: a.Extractor.Dimension(),
		Policy:    &pol,
		Logger:    logger,
	})
	if err != nil {
		return nil, a.closeWith(err)
	}

	a.Verifier, err = verify.NewVerifier(verify.Config{
		Detector:      det,
		Extractor:     a.Extractor,
		Classifier:    cls,
		Profiles:      a.Profiles,
		FakeThreshold: cfg.Verification.FakeConfidenceThreshold,
		Logger:        logger,
		Metrics:       a.Metrics,
	})
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.Enroller, err = verify.NewEnroller(verify.EnrollerConfig{
		Detector:  det,
		Extractor: a.Extractor,
		Profiles:  a.Profiles,
		Logger:    logger,
		Metrics:   a.Metrics,
	})
	if err != nil {
		return nil, a.closeWith(err)
	}

	if cfg.TokenSecret != "" {
		a.Issuer, err = token.NewIssuer(token.Config{
			Secret: []byte(cfg.TokenSecret),
			TTL:    cfg.Server.TokenTTL,
			Issuer: cfg.Server.TokenIssuer,
		})
		if err != nil {
			return nil, a.closeWith(err)
		}
	}

	logger.Debug("engine ready",
		"sample_rate", rate,
		"embedding_model", a.Extractor.Model(),
		"deepfake_model", cls.Model(),
		"storage", cfg.Storage.Driver,
		"fake_threshold", a.Verifier.FakeThreshold(),
		"tokens", a.Issuer != nil,
	)
	return a, nil
}

// Server builds the HTTP service over the engine.
func (a *App) Server() (*server.Server, error) {
	return server.New(server.Config{
		Verifier:   a.Verifier,
		Enroller:   a.Enroller,
		Profiles:   a.Profiles,
		Issuer:     a.Issuer,
		SampleRate: a.Config.Audio.SampleRate,
		MaxUpload:  a.Config.Server.MaxUpload,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
		Gatherer:   a.Registry,
	})
}

// Close releases the storage.
func (a *App) Close() error {
	if a.KV == nil {
		return nil
	}
	return a.KV.Close()
}

func (a *App) closeWith(err error) error {
	return errors.Join(err, a.Close())
}
