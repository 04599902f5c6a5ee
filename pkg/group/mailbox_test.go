package group

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxFIFO(t *testing.T) {
	m := NewMailbox()
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, m.Put(1, TagUser, []byte(p)))
	}
	require.NoError(t, m.Put(1, TagUser+1, []byte("other")))

	for _, want := range []string{"a", "b", "c"} {
		got, err := m.Take(ctx, 1, TagUser)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	got, err := m.Take(ctx, 1, TagUser+1)
	require.NoError(t, err)
	assert.Equal(t, "other", string(got))
}

func TestMailboxTakeBlocksUntilPut(t *testing.T) {
	m := NewMailbox()
	result := make(chan string, 1)

	go func() {
		got, err := m.Take(context.Background(), 2, TagBroadcast)
		if err != nil {
			result <- err.Error()
			return
		}
		result <- string(got)
	}()

	select {
	case <-result:
		t.Fatal("take returned before put")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, m.Put(2, TagBroadcast, []byte("late")))
	assert.Equal(t, "late", <-result)
}

func TestMailboxContextCancel(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Take(ctx, 0, TagUser)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailboxFail(t *testing.T) {
	m := NewMailbox()
	boom := errors.New("lost peer")
	require.NoError(t, m.Put(0, TagUser, []byte("queued")))

	done := make(chan error, 1)
	go func() {
		_, err := m.Take(context.Background(), 3, TagUser)
		done <- err
	}()

	m.Fail(boom)
	assert.ErrorIs(t, <-done, boom)

	got, err := m.Take(context.Background(), 0, TagUser)
	require.NoError(t, err)
	assert.Equal(t, "queued", string(got))

	assert.ErrorIs(t, m.Put(0, TagUser, nil), boom)
	assert.ErrorIs(t, m.Err(), boom)
}

func TestMailboxFailSource(t *testing.T) {
	m := NewMailbox()
	require.NoError(t, m.Put(1, TagUser, []byte("last")))
	m.FailSource(1, ErrPeerClosed)

	got, err := m.Take(context.Background(), 1, TagUser)
	require.NoError(t, err)
	assert.Equal(t, "last", string(got))

	_, err = m.Take(context.Background(), 1, TagUser)
	assert.ErrorIs(t, err, ErrPeerClosed)

	require.NoError(t, m.Put(2, TagUser, []byte("still open")))
	got, err = m.Take(context.Background(), 2, TagUser)
	require.NoError(t, err)
	assert.Equal(t, "still open", string(got))
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "content_names", TagContentNames.String())
	assert.Equal(t, "user_2", (TagUser + 2).String())
}
