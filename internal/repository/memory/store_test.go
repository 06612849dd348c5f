package memory

import (
	"context"
	"testing"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/catalog/catalogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	catalogtest.Run(t, func(t *testing.T) catalog.Store {
		return NewStore()
	})
}

func TestInsertAdvancesSequence(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Insert(ctx, catalog.Book{ID: "41", FileRef: "doc:41"}))

	id, err := s.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestInsertRejectsReusedID(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Insert(ctx, catalog.Book{ID: "1", FileRef: "doc:a"}))
	require.Error(t, s.Insert(ctx, catalog.Book{ID: "1", FileRef: "doc:b"}))

	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestSearchEmptyKeyword(t *testing.T) {
	s := NewStore()
	res, err := s.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, res)
}
