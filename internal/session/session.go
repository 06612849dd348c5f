package session

import (
	"context"
	"time"
)

const (
	DefaultTTL           = 15 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Session is the pending half of a two-step submission: a cover has arrived
// and the document has not.
type Session struct {
	AdminID  int64     `json:"admin_id"`
	CoverRef string    `json:"cover_ref"`
	Caption  string    `json:"caption"`
	Started  time.Time `json:"started"`
}

// Table stores at most one session per administrator. Entries expire after
// an inactivity TTL; an expired entry reads as absent.
type Table interface {
	Get(ctx context.Context, adminID int64) (Session, bool, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, adminID int64) error
}
