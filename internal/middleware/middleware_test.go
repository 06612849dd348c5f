package middleware

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
)

func TestExtractMethodName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "messages.getHistory", extractMethodName(&tg.MessagesGetHistoryRequest{}))
	assert.Equal(t, "unknown", extractMethodName(nil))
}
