package access

import (
	"context"
	"testing"

	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoster struct {
	admins map[int64]bool
	err    error
	calls  int
}

func (f *fakeRoster) IsChatAdmin(_ context.Context, _ chat.Peer, userID int64) (bool, error) {
	f.calls++
	return f.admins[userID], f.err
}

func TestCheckerAllowList(t *testing.T) {
	roster := &fakeRoster{}
	c := NewChecker([]int64{5504106603}, roster, chat.Channel(1, 0))

	ok, err := c.IsAdmin(context.Background(), 5504106603)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, roster.calls)
}

func TestCheckerFallsBackToRoster(t *testing.T) {
	roster := &fakeRoster{admins: map[int64]bool{9: true}}
	c := NewChecker(nil, roster, chat.Channel(1, 0))

	ok, err := c.IsAdmin(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsAdmin(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerWithoutGroup(t *testing.T) {
	roster := &fakeRoster{admins: map[int64]bool{9: true}}
	c := NewChecker(nil, roster, chat.Peer{})

	ok, err := c.IsAdmin(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, roster.calls)
}

func TestCheckerRosterError(t *testing.T) {
	roster := &fakeRoster{err: errors.New("CHAT_ADMIN_REQUIRED")}
	c := NewChecker(nil, roster, chat.Channel(1, 0))

	ok, err := c.IsAdmin(context.Background(), 9)
	assert.Error(t, err)
	assert.False(t, ok)
}
