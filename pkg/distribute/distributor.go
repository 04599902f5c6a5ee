package distribute

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/assign"
	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/topology"
)

// ErrCoordinatorNotLeader is returned when rank 0 does not lead node 0.
var ErrCoordinatorNotLeader = errors.New("coordinator must lead node 0")

// Distributor runs the two-level distribution for one process.
type Distributor struct {
	Transport group.Transport
	Topology  *topology.Topology

	// BlobLimit caps the filename blob of one transfer chunk. Zero means
	// wire.MaxBlobLength.
	BlobLimit int
}

// Distribute returns the records this process must act on. Every process
// of the job calls it; only the coordinator (rank 0) passes the content
// map built by the scan, the others pass nil.
//
// Every record of cm is delivered to exactly one process, and all the
// records of a storage target land on processes of a single node.
func (d *Distributor) Distribute(ctx context.Context, cm *assign.ContentMap) ([]content.StridedContent, error) {
	t, topo := d.Transport, d.Topology
	if topo.Leader(0) != 0 {
		return nil, ErrCoordinatorNotLeader
	}

	var mine []content.StridedContent
	var err error

	// Inter-node: coordinator to node leaders.
	switch {
	case t.Rank() == 0:
		mine, err = d.sendToLeaders(ctx, cm)
	case topo.IsLeader():
		mine, err = ReceiveContent(ctx, t, 0)
	}
	if err != nil {
		return nil, err
	}

	// Intra-node: leader to local peers.
	if !topo.IsLeader() {
		mine, err = ReceiveContent(ctx, t, topo.Leader(topo.NodeIndex))
		if err != nil {
			return nil, err
		}
		logger.Debug("Received %d records from node leader", len(mine))
		return mine, nil
	}

	ranks := topo.Ranks(topo.NodeIndex)
	parts := assign.SplitRoundRobin(mine, len(ranks))
	for local := 1; local < len(ranks); local++ {
		if err := SendContent(ctx, t, ranks[local], parts[local], d.BlobLimit); err != nil {
			return nil, err
		}
	}

	logger.Debug("Node %d: dealt %d records across %d processes", topo.NodeIndex, len(mine), len(ranks))
	return parts[0], nil
}

// sendToLeaders assigns targets to nodes, sends every remote node leader
// its records and returns the records of node 0.
func (d *Distributor) sendToLeaders(ctx context.Context, cm *assign.ContentMap) ([]content.StridedContent, error) {
	if cm == nil {
		cm = assign.NewContentMap()
	}
	topo := d.Topology

	assignment, err := assign.Assign(cm.Targets(), topo.NodeCount)
	if err != nil {
		return nil, err
	}
	parts, err := assign.Partition(cm, assignment, topo.NodeCount)
	if err != nil {
		return nil, err
	}

	logger.Info("Assigned %d targets (%d records) to %d nodes", len(cm.Targets()), cm.Len(), topo.NodeCount)

	for node := 1; node < topo.NodeCount; node++ {
		leader := topo.Leader(node)
		logger.Debug("Sending %d records to node %d (rank %d)", len(parts[node]), node, leader)
		if err := SendContent(ctx, d.Transport, leader, parts[node], d.BlobLimit); err != nil {
			return nil, fmt.Errorf("distribute to node %d: %w", node, err)
		}
	}
	return parts[0], nil
}
