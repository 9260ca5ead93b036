package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/deepfake"
	"github.com/haivivi/voicegate/pkg/metrics"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/vad"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// ProfileSource resolves enrolled profiles. *profile.Store implements it.
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
}

// Config configures a Verifier.
type Config struct {
	Detector   *vad.Detector
	Extractor  voiceprint.Extractor
	Classifier deepfake.Classifier
	Profiles   ProfileSource

	// FakeThreshold defaults to DefaultFakeThreshold.
	FakeThreshold float64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Verifier runs authentication attempts. It holds no per-attempt state and
// is safe for concurrent use.
type Verifier struct {
	detector      *vad.Detector
	extractor     voiceprint.Extractor
	classifier    deepfake.Classifier
	profiles      ProfileSource
	fakeThreshold float64
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	switch {
	case cfg.Detector == nil:
		return nil, errors.New("verify: detector is required")
	case cfg.Extractor == nil:
		return nil, errors.New("verify: extractor is required")
	case cfg.Classifier == nil:
		return nil, errors.New("verify: classifier is required")
	case cfg.Profiles == nil:
		return nil, errors.New("verify: profile source is required")
	}
	ft := cfg.FakeThreshold
	if ft == 0 {
		ft = DefaultFakeThreshold
	}
	if ft <= 0 || ft > 1 {
		return nil, fmt.Errorf("verify: fake threshold %g outside (0, 1]", ft)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		detector:      cfg.Detector,
		extractor:     cfg.Extractor,
		classifier:    cfg.Classifier,
		profiles:      cfg.Profiles,
		fakeThreshold: ft,
		logger:        logger,
		metrics:       cfg.Metrics,
	}, nil
}

// FakeThreshold returns the deepfake cutoff in use.
func (v *Verifier) FakeThreshold() float64 { return v.fakeThreshold }

type attemptKey struct{}

// WithAttemptID tags ctx with the ID used to log the next attempt.
func WithAttemptID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, attemptKey{}, id)
}

// AttemptID returns the attempt ID carried by ctx, if any.
func AttemptID(ctx context.Context) string {
	id, _ := ctx.Value(attemptKey{}).(string)
	return id
}

// Verify decides whether seg is a live recording of userID.
//
// It returns an error for unknown users, stale profiles, unusable audio and
// cancellation. Every other outcome, rejections included, is a Result.
// Cancellation is honored up to the decision.
func (v *Verifier) Verify(ctx context.Context, userID string, seg *pcm.Segment) (Result, error) {
	start := time.Now()
	id := AttemptID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	res, err := v.verify(ctx, userID, seg)
	elapsed := time.Since(start)
	if err != nil {
		v.logger.WarnContext(ctx, "verification failed",
			"attempt_id", id,
			"user_id", userID,
			"error", err,
			"elapsed", elapsed,
		)
		v.metrics.RecordVerifyError(errorKind(err))
		return Result{}, err
	}

	v.logger.InfoContext(ctx, "verification",
		"attempt_id", id,
		"user_id", userID,
		"accepted", res.Accepted,
		"reason", res.Reason.String(),
		"similarity", res.Similarity,
		"threshold", res.Threshold,
		"fake_confidence", res.FakeConfidence,
		"fake_threshold", res.FakeThreshold,
		"speech", res.Speech,
		"elapsed", elapsed,
	)
	v.metrics.RecordVerification(res.Accepted, res.Reason.String(), res.Similarity, res.FakeConfidence, res.Speech, elapsed)
	return res, nil
}

func (v *Verifier) verify(ctx context.Context, userID string, seg *pcm.Segment) (Result, error) {
	res := Result{UserID: userID, FakeThreshold: v.fakeThreshold, Reason: ReasonNone}
	if err := profile.ValidateUserID(userID); err != nil {
		return res, err
	}

	speech, err := v.detector.Detect(seg)
	if err != nil {
		return res, err
	}
	res.Speech = speech.Duration()
	v.logger.DebugContext(ctx, "speech detected",
		"user_id", userID,
		"frames", speech.Len(),
		"speech", res.Speech,
		"threshold_db", vad.EnergyDB(speech.Threshold()),
	)
	if speech.Empty() {
		res.Reason = ReasonNoSpeech
		return res, nil
	}

	var (
		emb  voiceprint.Embedding
		fake deepfake.Score
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		emb, err = v.extractor.Embed(gctx, speech)
		return err
	})
	g.Go(func() error {
		var err error
		fake, err = v.classifier.Classify(gctx, speech)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, vad.ErrInsufficientSpeech) || errors.Is(err, vad.ErrNoSpeech) {
			res.Reason = ReasonInsufficientSpeech
			return res, nil
		}
		return res, err
	}

	p, err := v.profiles.Get(ctx, userID)
	if err != nil {
		return res, err
	}
	sim, err := voiceprint.Cosine(emb, p.CentroidEmbedding())
	if err != nil {
		return res, fmt.Errorf("verify: compare with profile of %s: %w", userID, err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Similarity = sim
	res.FakeConfidence = float64(fake)
	res.Threshold = p.Threshold
	res.Accepted, res.Reason = Decide(sim, p.Threshold, res.FakeConfidence, v.fakeThreshold)
	return res, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, profile.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, profile.ErrStaleProfile):
		return "stale_profile"
	case errors.Is(err, profile.ErrInvalidUserID):
		return "invalid_user"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, pcm.ErrEmpty), errors.Is(err, pcm.ErrBadFormat), errors.Is(err, vad.ErrSegmentTooShort):
		return "bad_audio"
	default:
		return "internal"
	}
}
