package consumer

import (
	"context"
	"log"
	"time"

	"example.com/raidsync/internal/domain"
)

// Syncer is the subset of the sync service the handler drives.
type Syncer interface {
	ExistsByID(ctx context.Context, username string) (bool, error)
	CreateInitialSync(ctx context.Context, ts time.Time, username, membershipID string, membershipType int) (*domain.UserSyncState, error)
	UpdateSync(ctx context.Context, ts time.Time, username, membershipID string, membershipType int) (*domain.UserSyncState, error)
}

// SyncHandler creates a history for unseen users and updates it otherwise.
type SyncHandler struct {
	syncer Syncer
	logger *log.Logger
	now    func() time.Time
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(syncer Syncer, logger *log.Logger) *SyncHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile)
	}
	return &SyncHandler{
		syncer: syncer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle implements Handler.
func (h *SyncHandler) Handle(ctx context.Context, req Request) error {
	ts := req.RequestedAt
	if ts.IsZero() {
		ts = h.now()
	}

	exists, err := h.syncer.ExistsByID(ctx, req.Username)
	if err != nil {
		return err
	}

	var state *domain.UserSyncState
	if exists {
		state, err = h.syncer.UpdateSync(ctx, ts, req.Username, req.MembershipID, req.MembershipType)
	} else {
		state, err = h.syncer.CreateInitialSync(ctx, ts, req.Username, req.MembershipID, req.MembershipType)
	}
	if err != nil {
		return err
	}
	h.logger.Printf("synced %s: %d raids, version %d", state.Username, len(state.RaidHistory), state.Version)
	return nil
}
