package cli

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"relayboard/internal/store/sqlite"
)

const auditWriteTimeout = 5 * time.Second

// storeAuditor marks authorization outcomes in the durable audit log. The
// state engine invokes it with its lock held, so every write is handed off
// to a goroutine.
type storeAuditor struct {
	store *sqlite.Store
	log   *slog.Logger
}

func newStoreAuditor(store *sqlite.Store, logger *slog.Logger) *storeAuditor {
	return &storeAuditor{store: store, log: logger}
}

func (a *storeAuditor) AuthSessionUsed(sessionID int64) {
	go a.mark(sessionID, "used", a.store.MarkAuthSessionUsed)
}

func (a *storeAuditor) AuthSessionExpired(sessionID int64) {
	go a.mark(sessionID, "expired", a.store.MarkAuthSessionExpired)
}

func (a *storeAuditor) mark(sessionID int64, outcome string, fn func(context.Context, int64) error) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := fn(ctx, sessionID); err != nil {
		// No pending row means the session was never durably recorded or was
		// already resolved; not worth more than a debug line.
		if errors.Is(err, sql.ErrNoRows) {
			a.log.Debug("audit mark skipped", "session_id", sessionID, "outcome", outcome)
			return
		}
		a.log.Error("failed to mark auth session", "session_id", sessionID, "outcome", outcome, "err", err)
	}
}
