package access

import (
	"context"

	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/pkg/errors"
)

// Checker decides who may run privileged actions: anyone on the static
// allow-list, else an administrator of the configured group chat.
type Checker struct {
	allow  map[int64]struct{}
	roster chat.Roster
	group  chat.Peer
}

// NewChecker builds a Checker. roster may be nil to rely on the allow-list only.
func NewChecker(adminIDs []int64, roster chat.Roster, group chat.Peer) *Checker {
	allow := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		allow[id] = struct{}{}
	}
	return &Checker{allow: allow, roster: roster, group: group}
}

func (c *Checker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if _, ok := c.allow[userID]; ok {
		return true, nil
	}
	if c.roster == nil || c.group.ID == 0 {
		return false, nil
	}
	ok, err := c.roster.IsChatAdmin(ctx, c.group, userID)
	if err != nil {
		return false, errors.Wrap(err, "resolve chat admin")
	}
	return ok, nil
}
