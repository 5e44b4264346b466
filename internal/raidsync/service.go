// Package raidsync runs full and incremental raid history synchronization.
package raidsync

import (
	"context"
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"example.com/raidsync/internal/domain"
	"example.com/raidsync/internal/observability"
)

// DefaultEnrichConcurrency bounds concurrent build and augment calls per sync.
const DefaultEnrichConcurrency = 2

// CharacterSource lists a member's characters.
type CharacterSource interface {
	GetCharacters(ctx context.Context, membershipType int, membershipID string) ([]string, error)
}

// ActivityStream walks a character's activity history.
type ActivityStream interface {
	FetchAll(ctx context.Context, membershipType int, membershipID, characterID string) iter.Seq2[domain.ActivityRecord, error]
	FetchUntil(ctx context.Context, membershipType int, membershipID, characterID string, cutoff time.Time) iter.Seq2[domain.ActivityRecord, error]
}

// DetailBuilder maps an activity to a raid detail.
type DetailBuilder interface {
	Build(ctx context.Context, activity domain.ActivityRecord) (domain.RaidDetail, error)
}

// DetailAugmenter attaches after-action report data.
type DetailAugmenter interface {
	Augment(ctx context.Context, detail domain.RaidDetail, instanceID string) (domain.RaidDetail, error)
}

// Service orchestrates sync workflows.
type Service struct {
	store       domain.UserStore
	characters  CharacterSource
	activities  ActivityStream
	builder     DetailBuilder
	augmenter   DetailAugmenter
	concurrency int
	logger      *log.Logger
	locks       *keyedMutex
}

// Option configures the Service.
type Option func(*Service)

// WithEnrichConcurrency bounds concurrent enrichment per sync.
func WithEnrichConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a Service.
func NewService(store domain.UserStore, characters CharacterSource, activities ActivityStream, builder DetailBuilder, augmenter DetailAugmenter, opts ...Option) *Service {
	s := &Service{
		store:       store,
		characters:  characters,
		activities:  activities,
		builder:     builder,
		augmenter:   augmenter,
		concurrency: DefaultEnrichConcurrency,
		logger:      log.New(log.Writer(), "[raidsync] ", log.LstdFlags|log.Lshortfile),
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExistsByID reports whether a sync state exists for username.
func (s *Service) ExistsByID(ctx context.Context, username string) (bool, error) {
	return s.store.Exists(ctx, username)
}

// GetState returns the stored sync state for username.
func (s *Service) GetState(ctx context.Context, username string) (*domain.UserSyncState, error) {
	return s.store.Get(ctx, username)
}

// CreateInitialSync walks every character's full history and stores a new
// state with LastSyncAt set to ts. It fails with ErrConflict when a state
// already exists for username.
func (s *Service) CreateInitialSync(ctx context.Context, ts time.Time, username, membershipID string, membershipType int) (state *domain.UserSyncState, err error) {
	if username == "" || membershipID == "" {
		return nil, fmt.Errorf("%w: username and membership id are required", domain.ErrInvalidRequest)
	}
	start := time.Now()
	defer func() { observeSync(modeFull, start, err) }()

	unlock := s.locks.Lock(username)
	defer unlock()

	runID := uuid.NewString()
	details, err := s.collect(ctx, runID, membershipType, membershipID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("initial sync for %s: %w", username, err)
	}

	saved, err := s.store.Save(ctx, domain.UserSyncState{
		Username:       username,
		MembershipID:   membershipID,
		MembershipType: membershipType,
		LastSyncAt:     ts.UTC(),
		RaidHistory:    details,
	})
	if err != nil {
		return nil, fmt.Errorf("save initial sync for %s: %w", username, err)
	}

	recordsAppended.WithLabelValues(modeFull).Add(float64(len(details)))
	observability.RecordSyncPersisted(saved.LastSyncAt)
	s.logger.Printf("sync %s: created history for %s with %d raids", runID, username, len(details))
	return saved, nil
}

// UpdateSync appends raids played since the stored watermark and advances it
// to ts. A run that finds nothing new still persists the watermark.
func (s *Service) UpdateSync(ctx context.Context, ts time.Time, username, membershipID string, membershipType int) (state *domain.UserSyncState, err error) {
	if username == "" || membershipID == "" {
		return nil, fmt.Errorf("%w: username and membership id are required", domain.ErrInvalidRequest)
	}
	start := time.Now()
	defer func() { observeSync(modeIncremental, start, err) }()

	unlock := s.locks.Lock(username)
	defer unlock()

	current, err := s.store.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	cutoff := current.LastSyncAt
	details, err := s.collect(ctx, runID, membershipType, membershipID, &cutoff, current)
	if err != nil {
		return nil, fmt.Errorf("update sync for %s: %w", username, err)
	}

	next := *current
	next.MembershipID = membershipID
	next.MembershipType = membershipType
	next.RaidHistory = append(append([]domain.RaidDetail(nil), current.RaidHistory...), details...)
	if ts.After(current.LastSyncAt) {
		next.LastSyncAt = ts.UTC()
	}

	saved, err := s.store.Save(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("save sync for %s: %w", username, err)
	}

	recordsAppended.WithLabelValues(modeIncremental).Add(float64(len(details)))
	observability.RecordSyncPersisted(saved.LastSyncAt)
	if len(details) == 0 {
		s.logger.Printf("sync %s: no new raids for %s, watermark at %s", runID, username, saved.LastSyncAt.Format(time.RFC3339))
	} else {
		s.logger.Printf("sync %s: appended %d raids for %s, watermark at %s", runID, len(details), username, saved.LastSyncAt.Format(time.RFC3339))
	}
	return saved, nil
}

// collect fetches and enriches activities for every character. Activities
// already present in existing, or repeated across characters, are skipped.
func (s *Service) collect(ctx context.Context, runID string, membershipType int, membershipID string, cutoff *time.Time, existing *domain.UserSyncState) ([]domain.RaidDetail, error) {
	characters, err := s.characters.GetCharacters(ctx, membershipType, membershipID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}

	seen := make(map[string]struct{})
	if existing != nil {
		for _, raid := range existing.RaidHistory {
			seen[raid.InstanceID] = struct{}{}
		}
	}

	// cancel abandons queued and running enrichment when the walk fails.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	// Each slot is written by exactly one enrichment goroutine.
	var slots []*domain.RaidDetail
	var walkErr error

walk:
	for _, characterID := range characters {
		var activities iter.Seq2[domain.ActivityRecord, error]
		if cutoff != nil {
			activities = s.activities.FetchUntil(gctx, membershipType, membershipID, characterID, *cutoff)
		} else {
			activities = s.activities.FetchAll(gctx, membershipType, membershipID, characterID)
		}

		for activity, err := range activities {
			if err != nil {
				// A cancelled gctx with a live ctx means enrichment failed
				// first; g.Wait reports that error instead.
				if gctx.Err() == nil || ctx.Err() != nil {
					walkErr = fmt.Errorf("character %s: %w", characterID, err)
					cancel()
				}
				break walk
			}
			if _, dup := seen[activity.InstanceID]; dup {
				continue
			}
			seen[activity.InstanceID] = struct{}{}

			slot := new(domain.RaidDetail)
			slots = append(slots, slot)
			g.Go(func() error {
				detail, err := s.builder.Build(gctx, activity)
				if err != nil {
					return err
				}
				detail, err = s.augmenter.Augment(gctx, detail, activity.InstanceID)
				if err != nil {
					return err
				}
				*slot = detail
				return nil
			})
		}
	}

	waitErr := g.Wait()
	if walkErr != nil {
		s.logger.Printf("sync %s: activity walk failed: %v", runID, walkErr)
		return nil, walkErr
	}
	if waitErr != nil {
		s.logger.Printf("sync %s: enrichment failed: %v", runID, waitErr)
		return nil, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details := make([]domain.RaidDetail, 0, len(slots))
	for _, slot := range slots {
		details = append(details, *slot)
	}
	return details, nil
}
