package tasteid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/tasteid/internal/lock"
	"github.com/thebtf/tasteid/pkg/models"
)

// ErrProfileNotFound is returned when a user has never been computed.
var ErrProfileNotFound = errors.New("taste profile not found")

// RatingSource is the read-only, ordered feed of a user's ratings.
type RatingSource interface {
	ListRatings(ctx context.Context, userID string) ([]models.RatingEvent, error)
}

// ProfileRepository persists profile rows. GetProfile returns (nil, nil) for an
// unknown user. SaveProfile writes only if the stored version still equals
// expectedVersion (0 meaning no row yet) and must report a lost race with an
// error wrapping ErrConflict.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile, expectedVersion int64) error
}

// Outcome is a persisted recompute.
type Outcome struct {
	Profile *models.Profile
	Result  *Result
}

// Service runs recomputes against the stores, one at a time per user.
type Service struct {
	engine      *Engine
	ratings     RatingSource
	profiles    ProfileRepository
	locker      lock.Locker
	logger      zerolog.Logger
	reads       singleflight.Group
	lockTimeout time.Duration
}

// NewService wires a recompute service.
func NewService(engine *Engine, ratings RatingSource, profiles ProfileRepository, locker lock.Locker, logger zerolog.Logger) *Service {
	return &Service{
		engine:      engine,
		ratings:     ratings,
		profiles:    profiles,
		locker:      locker,
		logger:      logger.With().Str("component", "tasteid-service").Logger(),
		lockTimeout: 10 * time.Second,
	}
}

// SetLockTimeout bounds how long Recompute waits for a concurrent run of the same user.
func (s *Service) SetLockTimeout(d time.Duration) {
	s.lockTimeout = d
}

// Engine returns the engine used by the service.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Recompute reads the user's ratings and stored snapshot, runs the engine and
// replaces the profile. Either the full new profile is persisted or nothing changes.
func (s *Service) Recompute(ctx context.Context, userID string) (out *Outcome, err error) {
	started := time.Now()
	defer func() { s.engine.metrics.recordRun(ctx, started, err) }()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	unlock, err := s.locker.Lock(lockCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: recompute for %s already running", ErrConflict, userID)
		}
		return nil, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	prior, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	events, err := s.ratings.ListRatings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		snapshot        *models.Snapshot
		expectedVersion int64
	)
	if prior != nil {
		snapshot = &prior.Snapshot
		expectedVersion = prior.Version
	}

	result, err := s.engine.Compute(events, snapshot)
	if err != nil {
		return nil, err
	}

	profile := result.Profile(userID, uuid.NewString(), s.engine.now().UTC())
	profile.Version = expectedVersion + 1
	if err := s.profiles.SaveProfile(ctx, profile, expectedVersion); err != nil {
		if errors.Is(err, ErrConflict) {
			s.logger.Warn().Str("user_id", userID).Int64("version", expectedVersion).Msg("Profile changed during recompute")
		}
		return nil, fmt.Errorf("save profile: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("run_id", profile.RunID).
		Int64("version", profile.Version).
		Dur("took", time.Since(started)).
		Msg("Recompute complete")
	return &Outcome{Profile: profile, Result: result}, nil
}

// Profile returns the stored profile. Concurrent reads of one user share a query.
func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	v, err, _ := s.reads.Do(userID, func() (any, error) {
		return s.profiles.GetProfile(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	profile, _ := v.(*models.Profile)
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// Preview computes a signature from the user's current ratings without persisting.
func (s *Service) Preview(ctx context.Context, userID string) (*PreviewResult, error) {
	events, err := s.ratings.ListRatings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	sig, err := s.engine.Preview(events)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		Archetype:   sig.Archetype,
		RatingStyle: sig.RatingStyle,
		Signature:   sig.Signature,
		Stats:       sig.Stats,
	}, nil
}

// PreviewResult is a signature computed without touching stored state.
type PreviewResult struct {
	Archetype   models.ArchetypeResult    `json:"archetype"`
	Stats       models.TasteStats         `json:"stats"`
	RatingStyle models.RatingStyle        `json:"rating_style"`
	Signature   models.ListeningSignature `json:"signature"`
}
