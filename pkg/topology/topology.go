// Package topology groups the processes of a job by node.
//
// Processes sharing a locality key (normally the host name) form a node.
// Nodes are numbered by their lowest global rank, and local ranks follow
// global rank order within a node, so rank 0 is always the leader of node
// 0 and acts as coordinator.
package topology

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/lustrebulk/pkg/group"
)

// ErrEmptyKey is returned when a process offers an empty locality key.
var ErrEmptyKey = errors.New("empty locality key")

// NodeTopology is the view of one process on the node layout.
type NodeTopology struct {
	// NodeCount is the number of nodes in the job.
	NodeCount int `yaml:"node_count" json:"node_count"`

	// NodeIndex is the node of this process, 0..NodeCount-1.
	NodeIndex int `yaml:"node_index" json:"node_index"`

	// NodeLocalSize is the number of processes on this node.
	NodeLocalSize int `yaml:"node_local_size" json:"node_local_size"`

	// LocalRank is the index of this process within its node.
	LocalRank int `yaml:"local_rank" json:"local_rank"`
}

// IsLeader reports whether this process leads its node.
func (n NodeTopology) IsLeader() bool {
	return n.LocalRank == 0
}

// Layout lists the global ranks of every node.
type Layout struct {
	nodes [][]int
}

// Leader returns the global rank leading node.
func (l Layout) Leader(node int) int {
	return l.nodes[node][0]
}

// Ranks returns the global ranks of node, in local rank order.
func (l Layout) Ranks(node int) []int {
	return l.nodes[node]
}

// Len returns the number of nodes.
func (l Layout) Len() int {
	return len(l.nodes)
}

// Topology is the complete node layout plus the position of this process.
type Topology struct {
	NodeTopology
	Layout
}

// Build computes the topology of rank from the locality key of every rank.
func Build(keys []string, rank int) (*Topology, error) {
	if err := group.CheckRank(rank, len(keys)); err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var nodes [][]int
	for r, key := range keys {
		if key == "" {
			return nil, fmt.Errorf("rank %d: %w", r, ErrEmptyKey)
		}
		node, ok := index[key]
		if !ok {
			node = len(nodes)
			index[key] = node
			nodes = append(nodes, nil)
		}
		nodes[node] = append(nodes[node], r)
	}

	t := &Topology{Layout: Layout{nodes: nodes}}
	t.NodeCount = len(nodes)
	t.NodeIndex = index[keys[rank]]
	t.NodeLocalSize = len(nodes[t.NodeIndex])
	for local, r := range nodes[t.NodeIndex] {
		if r == rank {
			t.LocalRank = local
		}
	}
	return t, nil
}

// Discover exchanges locality keys with every process of t and builds the
// topology. It is collective: every process must call it before any
// content transfer. A failure leaves no usable topology and is fatal.
//
// Keys are exchanged before they are checked, so an empty key fails every
// process instead of leaving the others blocked in the exchange.
func Discover(ctx context.Context, t group.Transport, localityKey string) (*Topology, error) {
	parts, err := group.AllGather(ctx, t, []byte(localityKey))
	if err != nil {
		return nil, fmt.Errorf("exchange locality keys: %w", err)
	}

	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i] = string(p)
	}
	return Build(keys, t.Rank())
}

// LocalityKey returns override when set, the host name otherwise.
func LocalityKey(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve host name: %w", err)
	}
	return host, nil
}
