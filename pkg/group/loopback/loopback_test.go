package loopback

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceive(t *testing.T) {
	n := New(3)
	defer n.Close()
	ctx := context.Background()

	payload := []byte("hello")
	require.NoError(t, n.Endpoint(0).Send(ctx, 2, group.TagUser, payload))
	payload[0] = 'j'

	got, err := n.Endpoint(2).Receive(ctx, 0, group.TagUser)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestInvalidRank(t *testing.T) {
	n := New(2)
	defer n.Close()

	err := n.Endpoint(0).Send(context.Background(), 2, group.TagUser, nil)
	assert.ErrorIs(t, err, group.ErrInvalidRank)

	_, err = n.Endpoint(0).Receive(context.Background(), -1, group.TagUser)
	assert.ErrorIs(t, err, group.ErrInvalidRank)
}

func TestClose(t *testing.T) {
	n := New(2)
	ep := n.Endpoint(1)
	require.NoError(t, ep.Close())

	_, err := ep.Receive(context.Background(), 0, group.TagUser)
	assert.ErrorIs(t, err, group.ErrClosed)
	assert.ErrorIs(t, ep.Send(context.Background(), 0, group.TagUser, nil), group.ErrClosed)
	assert.ErrorIs(t, n.Endpoint(0).Send(context.Background(), 1, group.TagUser, nil), group.ErrClosed)
}

func TestFailAbortsEveryEndpoint(t *testing.T) {
	n := New(2)
	boom := errors.New("rank 1 crashed")
	n.Fail(boom)

	_, err := n.Endpoint(0).Receive(context.Background(), 1, group.TagUser)
	assert.ErrorIs(t, err, boom)
}

func TestNodes(t *testing.T) {
	assert.Equal(t, []string{"node0", "node0", "node1", "node1", "node2"}, Nodes(5, 3))
	assert.Equal(t, []string{"node0", "node0"}, Nodes(2, 0))

	n := NewWithHosts(Nodes(4, 2))
	assert.Equal(t, "node1", n.Endpoint(3).Host())
	assert.Equal(t, 4, n.Size())
}
