package topology

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/lustrebulk/pkg/group/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestBuild(t *testing.T) {
	keys := []string{"a", "b", "a", "c", "b", "a"}

	tests := []struct {
		rank int
		want NodeTopology
	}{
		{0, NodeTopology{NodeCount: 3, NodeIndex: 0, NodeLocalSize: 3, LocalRank: 0}},
		{1, NodeTopology{NodeCount: 3, NodeIndex: 1, NodeLocalSize: 2, LocalRank: 0}},
		{2, NodeTopology{NodeCount: 3, NodeIndex: 0, NodeLocalSize: 3, LocalRank: 1}},
		{3, NodeTopology{NodeCount: 3, NodeIndex: 2, NodeLocalSize: 1, LocalRank: 0}},
		{4, NodeTopology{NodeCount: 3, NodeIndex: 1, NodeLocalSize: 2, LocalRank: 1}},
		{5, NodeTopology{NodeCount: 3, NodeIndex: 0, NodeLocalSize: 3, LocalRank: 2}},
	}

	for _, tt := range tests {
		topo, err := Build(keys, tt.rank)
		require.NoError(t, err)
		assert.Equal(t, tt.want, topo.NodeTopology, "rank %d", tt.rank)
	}

	topo, err := Build(keys, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 5}, topo.Ranks(0))
	assert.Equal(t, 1, topo.Leader(1))
	assert.Equal(t, 3, topo.Leader(2))
	assert.True(t, topo.IsLeader())
}

func TestBuildErrors(t *testing.T) {
	_, err := Build([]string{"a", ""}, 0)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Build([]string{"a"}, 1)
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	hosts := loopback.Nodes(5, 2)
	n := loopback.NewWithHosts(hosts)
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topos := make([]*Topology, n.Size())
	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < n.Size(); rank++ {
		rank := rank
		ep := n.Endpoint(rank)
		g.Go(func() error {
			topo, err := Discover(ctx, ep, ep.Host())
			topos[rank] = topo
			return err
		})
	}
	require.NoError(t, g.Wait())

	for rank, topo := range topos {
		assert.Equal(t, 2, topo.NodeCount)
		assert.Equal(t, rank/3, topo.NodeIndex)
		assert.Equal(t, rank%3, topo.LocalRank)
	}
	assert.Equal(t, 3, topos[0].NodeLocalSize)
	assert.Equal(t, 2, topos[4].NodeLocalSize)
	assert.Equal(t, []int{3, 4}, topos[4].Ranks(1))
}

func TestLocalityKey(t *testing.T) {
	key, err := LocalityKey("rack1-node7")
	require.NoError(t, err)
	assert.Equal(t, "rack1-node7", key)

	key, err = LocalityKey("")
	require.NoError(t, err)
	assert.NotEmpty(t, key)
}

func TestDiscoverEmptyKeyFailsEveryRank(t *testing.T) {
	n := loopback.New(3)
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make([]error, n.Size())
	var wg sync.WaitGroup
	for rank := 0; rank < n.Size(); rank++ {
		rank := rank
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := "node"
			if rank == 2 {
				key = ""
			}
			_, errs[rank] = Discover(ctx, n.Endpoint(rank), key)
		}()
	}
	wg.Wait()

	for rank, err := range errs {
		assert.ErrorIs(t, err, ErrEmptyKey, "rank %d", rank)
	}
}
