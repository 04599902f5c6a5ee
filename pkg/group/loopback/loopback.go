// Package loopback connects the ranks of a job inside a single process.
//
// Each rank gets an Endpoint implementing group.Transport; payloads are
// copied into the receiver's mailbox. Endpoints can carry a host name so
// that a multi-node layout can be simulated on one machine.
package loopback

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/marmos91/lustrebulk/pkg/group"
)

// Network is a set of connected endpoints.
type Network struct {
	endpoints []*Endpoint
}

// New returns a network of size endpoints sharing the host "localhost".
func New(size int) *Network {
	hosts := make([]string, size)
	for i := range hosts {
		hosts[i] = "localhost"
	}
	return NewWithHosts(hosts)
}

// NewWithHosts returns one endpoint per entry of hosts. Endpoints with the
// same host name form one simulated node.
func NewWithHosts(hosts []string) *Network {
	n := &Network{endpoints: make([]*Endpoint, len(hosts))}
	for rank, host := range hosts {
		n.endpoints[rank] = &Endpoint{
			network: n,
			rank:    rank,
			host:    host,
			box:     group.NewMailbox(),
		}
	}
	return n
}

// Nodes lays size ranks out over nodes simulated hosts in blocks, the way
// a batch scheduler places consecutive ranks on the same node.
func Nodes(size, nodes int) []string {
	if nodes < 1 {
		nodes = 1
	}
	perNode := (size + nodes - 1) / nodes
	hosts := make([]string, size)
	for rank := range hosts {
		hosts[rank] = fmt.Sprintf("node%d", rank/perNode)
	}
	return hosts
}

// Size returns the number of endpoints.
func (n *Network) Size() int {
	return len(n.endpoints)
}

// Endpoint returns the endpoint of rank.
func (n *Network) Endpoint(rank int) *Endpoint {
	return n.endpoints[rank]
}

// Fail aborts every endpoint with err, simulating a lost process.
func (n *Network) Fail(err error) {
	for _, ep := range n.endpoints {
		ep.box.Fail(err)
	}
}

// Close closes every endpoint.
func (n *Network) Close() error {
	for _, ep := range n.endpoints {
		_ = ep.Close()
	}
	return nil
}

// Endpoint is one rank of a Network.
type Endpoint struct {
	network *Network
	rank    int
	host    string
	box     *group.Mailbox
	closed  atomic.Bool
}

var _ group.Transport = (*Endpoint)(nil)

func (e *Endpoint) Rank() int { return e.rank }

func (e *Endpoint) Size() int { return len(e.network.endpoints) }

// Host returns the simulated host name of this endpoint.
func (e *Endpoint) Host() string { return e.host }

func (e *Endpoint) Send(ctx context.Context, to int, tag group.Tag, payload []byte) error {
	if e.closed.Load() {
		return group.ErrClosed
	}
	if err := group.CheckRank(to, e.Size()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	if err := e.network.endpoints[to].box.Put(e.rank, tag, data); err != nil {
		return fmt.Errorf("deliver to %d: %w", to, err)
	}
	return nil
}

func (e *Endpoint) Receive(ctx context.Context, from int, tag group.Tag) ([]byte, error) {
	if err := group.CheckRank(from, e.Size()); err != nil {
		return nil, err
	}
	return e.box.Take(ctx, from, tag)
}

func (e *Endpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.box.Fail(group.ErrClosed)
	return nil
}
