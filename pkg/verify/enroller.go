package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/metrics"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/vad"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// ProfileWriter persists enrollments. *profile.Store implements it.
type ProfileWriter interface {
	Enroll(ctx context.Context, userID string, embs []voiceprint.Embedding) (*profile.Profile, error)
	Retrain(ctx context.Context, userID string, embs []voiceprint.Embedding) (*profile.Profile, error)
}

// EnrollerConfig configures an Enroller.
type EnrollerConfig struct {
	Detector  *vad.Detector
	Extractor voiceprint.Extractor
	Profiles  ProfileWriter

	// Concurrency bounds parallel sample processing; 0 means GOMAXPROCS.
	Concurrency int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Enroller builds profiles from raw recordings.
type Enroller struct {
	detector    *vad.Detector
	extractor   voiceprint.Extractor
	profiles    ProfileWriter
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewEnroller creates an Enroller.
func NewEnroller(cfg EnrollerConfig) (*Enroller, error) {
	switch {
	case cfg.Detector == nil:
		return nil, errors.New("verify: detector is required")
	case cfg.Extractor == nil:
		return nil, errors.New("verify: extractor is required")
	case cfg.Profiles == nil:
		return nil, errors.New("verify: profile writer is required")
	}
	e := &Enroller{
		detector:    cfg.Detector,
		extractor:   cfg.Extractor,
		profiles:    cfg.Profiles,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if e.concurrency <= 0 {
		e.concurrency = runtime.GOMAXPROCS(0)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Enroll creates or replaces the profile of userID from samples. Any sample
// without enough speech fails the whole call and the previous profile, if
// any, is kept.
func (e *Enroller) Enroll(ctx context.Context, userID string, samples []*pcm.Segment) (*profile.Profile, error) {
	p, err := e.run(ctx, "enroll", userID, samples, e.profiles.Enroll)
	e.metrics.RecordEnrollment("enroll", len(samples), err)
	return p, err
}

// Retrain replaces the samples of an existing profile.
func (e *Enroller) Retrain(ctx context.Context, userID string, samples []*pcm.Segment) (*profile.Profile, error) {
	p, err := e.run(ctx, "retrain", userID, samples, e.profiles.Retrain)
	e.metrics.RecordEnrollment("retrain", len(samples), err)
	return p, err
}

type writeFunc func(context.Context, string, []voiceprint.Embedding) (*profile.Profile, error)

func (e *Enroller) run(ctx context.Context, op, userID string, samples []*pcm.Segment, write writeFunc) (*profile.Profile, error) {
	if err := profile.ValidateUserID(userID); err != nil {
		return nil, err
	}
	embs, err := e.Embed(ctx, samples)
	if err != nil {
		e.logger.WarnContext(ctx, "enrollment rejected", "op", op, "user_id", userID, "error", err)
		return nil, err
	}
	return write(ctx, userID, embs)
}

// Embed runs VAD and embedding extraction over samples concurrently. The
// result keeps the input order. Errors name the failing sample index.
func (e *Enroller) Embed(ctx context.Context, samples []*pcm.Segment) ([]voiceprint.Embedding, error) {
	embs := make([]voiceprint.Embedding, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, seg := range samples {
		g.Go(func() error {
			speech, err := e.detector.Detect(seg)
			if err != nil {
				return fmt.Errorf("verify: sample %d: %w", i, err)
			}
			emb, err := e.extractor.Embed(gctx, speech)
			if err != nil {
				return fmt.Errorf("verify: sample %d: %w", i, err)
			}
			e.logger.DebugContext(gctx, "sample embedded",
				"index", i,
				"speech", speech.Duration(),
			)
			embs[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embs, nil
}
