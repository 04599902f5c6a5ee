// Package group defines the message-passing capability shared by every
// process of a job.
//
// A job is a fixed set of Size() processes identified by their rank
// (0..Size()-1). Processes exchange opaque payloads point to point; every
// payload carries a Tag so that protocol traffic is never confused with
// unrelated messages. Collectives (Broadcast, Reduce, Barrier, Gather,
// AllGather) are built on top of Send and Receive and must be invoked by
// every process in the same relative order.
//
// Delivery guarantees:
//   - Messages between a fixed sender and receiver under the same tag are
//     delivered in send order.
//   - No ordering is guaranteed across different senders or tags.
//   - Send returns once the transport has accepted the payload; Receive
//     blocks until a matching payload arrives or the context is cancelled.
//
// Two implementations are provided: group/loopback (in-process) and
// group/tcp (one process per rank, TCP connections).
package group

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrInvalidRank is returned when a peer rank is out of range.
	ErrInvalidRank = errors.New("invalid rank")

	// ErrPeerClosed is returned when a peer went away and no more payloads
	// can arrive from it.
	ErrPeerClosed = errors.New("peer closed connection")
)

// Tag labels a message with its purpose.
type Tag int32

// Tags used by this module. Values below TagUser are reserved.
const (
	TagContentChunks Tag = iota + 1
	TagContentCount
	TagContentLength
	TagContentNames
	TagContentValues
	TagBroadcast
	TagReduce
	TagBarrier
	TagGather

	// TagUser is the first tag available to callers.
	TagUser Tag = 64
)

func (t Tag) String() string {
	switch t {
	case TagContentChunks:
		return "content_chunks"
	case TagContentCount:
		return "content_count"
	case TagContentLength:
		return "content_length"
	case TagContentNames:
		return "content_names"
	case TagContentValues:
		return "content_values"
	case TagBroadcast:
		return "broadcast"
	case TagReduce:
		return "reduce"
	case TagBarrier:
		return "barrier"
	case TagGather:
		return "gather"
	}
	if t >= TagUser {
		return fmt.Sprintf("user_%d", t-TagUser)
	}
	return fmt.Sprintf("tag_%d", int32(t))
}

// Transport moves payloads between the processes of a job.
//
// Implementations must be safe for concurrent use; payloads handed to Send
// may be reused by the caller once Send returns.
type Transport interface {
	// Rank returns the rank of this process.
	Rank() int

	// Size returns the number of processes in the job.
	Size() int

	// Send delivers payload to rank to under tag.
	Send(ctx context.Context, to int, tag Tag, payload []byte) error

	// Receive returns the next payload sent by rank from under tag.
	Receive(ctx context.Context, from int, tag Tag) ([]byte, error)

	// Close releases the transport. Pending and future receives fail.
	Close() error
}

// CheckRank validates a peer rank against the size of the job.
func CheckRank(rank, size int) error {
	if rank < 0 || rank >= size {
		return fmt.Errorf("rank %d of %d: %w", rank, size, ErrInvalidRank)
	}
	return nil
}
