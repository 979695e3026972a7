package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	data := []byte("payload")
	require.NoError(t, store.Put(context.Background(), "k", "", data))
	data[0] = 'X'

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestContentHash(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentHash(nil))
	assert.Len(t, ContentHash([]byte("%PDF-1.4")), 64)
}

func TestScrubEmails(t *testing.T) {
	assert.Equal(t, "send to [EMAIL] now", ScrubEmails("send to a.b@c.jp now"))
}
