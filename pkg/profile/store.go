package profile

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"iter"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voicegate/pkg/kv"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// DefaultPrefix scopes profiles in the kv store.
var DefaultPrefix = kv.Key{"voicegate", "profile"}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@+-]{1,128}$`)

// ValidateUserID reports whether id can name a profile.
func ValidateUserID(id string) error {
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	return nil
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// KV persists profiles. Required.
	KV kv.Store

	// Model is the tag of the embedding model in use. Profiles built by
	// another model are stale. Required.
	Model string

	// Dimension is the embedding length of Model. Required.
	Dimension int

	// Policy defaults to DefaultPolicy().
	Policy *Policy

	// Prefix defaults to DefaultPrefix.
	Prefix kv.Key

	// HashBits sets the voice hash width; 0 means 16.
	HashBits int

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Store persists enrollment profiles. It is an explicit object passed to
// its users; there is no package-level instance.
type Store struct {
	kv     kv.Store
	model  string
	dim    int
	policy Policy
	prefix kv.Key
	hasher *voiceprint.Hasher
	logger *slog.Logger
	now    func() time.Time
	locks  keyedMutex
}

// NewStore creates a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.KV == nil {
		return nil, errors.New("profile: kv store is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("profile: model tag is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("profile: dimension must be positive, got %d", cfg.Dimension)
	}
	s := &Store{
		kv:     cfg.KV,
		model:  cfg.Model,
		dim:    cfg.Dimension,
		policy: DefaultPolicy(),
		prefix: DefaultPrefix,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if cfg.Policy != nil {
		s.policy = *cfg.Policy
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Prefix) > 0 {
		s.prefix = cfg.Prefix
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	bits := cfg.HashBits
	if bits == 0 {
		bits = 16
	}
	h, err := voiceprint.NewHasher(cfg.Dimension, bits, hashSeed(cfg.Model))
	if err != nil {
		return nil, err
	}
	s.hasher = h
	return s, nil
}

// Model returns the current embedding model tag.
func (s *Store) Model() string { return s.model }

// Policy returns the enrollment policy.
func (s *Store) Policy() Policy { return s.policy }

func (s *Store) key(userID string) kv.Key { return s.prefix.Append(userID) }

// Enroll creates the profile of userID, or replaces it entirely when one
// exists. On error the previous profile is untouched.
func (s *Store) Enroll(ctx context.Context, userID string, embs []voiceprint.Embedding) (*Profile, error) {
	return s.write(ctx, userID, embs, false)
}

// Retrain replaces the embedding set of an existing profile and recomputes
// centroid and threshold. It returns ErrUnknownUser when there is no
// profile. Stale profiles may be retrained; that is how they are upgraded.
func (s *Store) Retrain(ctx context.Context, userID string, embs []voiceprint.Embedding) (*Profile, error) {
	return s.write(ctx, userID, embs, true)
}

func (s *Store) write(ctx context.Context, userID string, embs []voiceprint.Embedding, mustExist bool) (*Profile, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := s.validate(embs); err != nil {
		return nil, err
	}

	p, err := s.build(userID, embs)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	prev, err := s.Load(ctx, userID)
	switch {
	case errors.Is(err, ErrUnknownUser):
		if mustExist {
			return nil, err
		}
		p.Revision = 1
		p.CreatedAt = p.UpdatedAt
	case err != nil:
		return nil, err
	default:
		p.Revision = prev.Revision + 1
		p.CreatedAt = prev.CreatedAt
	}

	data, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("profile: encode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, s.key(userID), data); err != nil {
		return nil, fmt.Errorf("profile: save %s: %w", userID, err)
	}

	op := "enroll"
	if mustExist {
		op = "retrain"
	}
	s.logger.InfoContext(ctx, "profile saved",
		"op", op,
		"user_id", userID,
		"revision", p.Revision,
		"samples", len(p.Embeddings),
		"threshold", p.Threshold,
		"sim_mean", p.Stats.Mean,
		"sim_std", p.Stats.StdDev,
		"voice", voiceprint.VoiceLabel(p.VoiceHash),
	)
	return p, nil
}

func (s *Store) validate(embs []voiceprint.Embedding) error {
	if len(embs) < s.policy.MinSamples {
		return fmt.Errorf("%w: got %d, need %d", ErrTooFewSamples, len(embs), s.policy.MinSamples)
	}
	for i, e := range embs {
		if e.Model != s.model {
			return fmt.Errorf("%w: sample %d from %q, store uses %q", ErrModelMismatch, i, e.Model, s.model)
		}
		if len(e.Vector) != s.dim {
			return fmt.Errorf("%w: sample %d has %d, store uses %d", ErrDimensionMismatch, i, len(e.Vector), s.dim)
		}
		if !e.Finite() {
			return fmt.Errorf("%w: sample %d", ErrNonFiniteEmbedding, i)
		}
		if e.Norm() == 0 {
			return fmt.Errorf("%w: sample %d", ErrZeroEmbedding, i)
		}
	}
	return nil
}

func (s *Store) build(userID string, embs []voiceprint.Embedding) (*Profile, error) {
	centroid, err := voiceprint.Mean(embs)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(embs))
	for i, e := range embs {
		vectors[i] = e.Clone().Vector
	}
	threshold, stats := ComputeThreshold(vectors, centroid.Vector, s.policy)
	hash, err := s.hasher.Hash(centroid.Vector)
	if err != nil {
		return nil, err
	}
	return &Profile{
		UserID:     userID,
		Model:      s.model,
		Dimension:  s.dim,
		Embeddings: vectors,
		Centroid:   centroid.Vector,
		Threshold:  threshold,
		Stats:      stats,
		VoiceHash:  hash,
		UpdatedAt:  s.now().UTC(),
	}, nil
}

// Load returns the stored profile without checking its model.
func (s *Store) Load(ctx context.Context, userID string) (*Profile, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	data, err := s.kv.Get(ctx, s.key(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("profile: load %s: %w", userID, err)
	}
	var p Profile
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile: decode %s: %w", userID, err)
	}
	return &p, nil
}

// Get returns the profile of userID for verification. It fails with
// ErrUnknownUser when there is none and ErrStaleProfile when it was built by
// another model.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.Model != s.model || p.Dimension != s.dim {
		return nil, fmt.Errorf("%w: %s enrolled with %q, current model %q", ErrStaleProfile, userID, p.Model, s.model)
	}
	return p, nil
}

// Delete removes the profile of userID. Deleting an unknown user returns
// ErrUnknownUser.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	if _, err := s.kv.Get(ctx, s.key(userID)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return err
	}
	if err := s.kv.Delete(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("profile: delete %s: %w", userID, err)
	}
	s.logger.InfoContext(ctx, "profile deleted", "user_id", userID)
	return nil
}

// Export returns the stored profile of userID in its portable encoding.
func (s *Store) Export(ctx context.Context, userID string) ([]byte, error) {
	p, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("profile: encode: %w", err)
	}
	return data, nil
}

// Import enrolls the user of an exported profile from its embeddings. The
// centroid and threshold are recomputed under this store's policy, and the
// export must come from the store's embedding model.
func (s *Store) Import(ctx context.Context, data []byte) (*Profile, error) {
	var p Profile
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile: decode export: %w", err)
	}
	if err := ValidateUserID(p.UserID); err != nil {
		return nil, err
	}
	if p.Model != s.model {
		return nil, fmt.Errorf("%w: export of %s from %q, store uses %q", ErrModelMismatch, p.UserID, p.Model, s.model)
	}
	return s.Enroll(ctx, p.UserID, p.Samples())
}

// List yields the IDs of all enrolled users in lexicographic order.
func (s *Store) List(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for e, err := range s.kv.List(ctx, s.prefix) {
			if err != nil {
				yield("", err)
				return
			}
			if len(e.Key) != len(s.prefix)+1 {
				continue
			}
			if !yield(e.Key[len(s.prefix)], nil) {
				return
			}
		}
	}
}

// hashSeed derives a stable hyperplane seed from the model tag so voice
// hashes survive restarts.
func hashSeed(model string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(model))
	return h.Sum64()
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e := k.locks[key]
	if e == nil {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
