package group

import (
	"bytes"
	"context"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Op combines two values during a reduction.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

func (o Op) String() string {
	switch o {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	default:
		return "unknown"
	}
}

// Number is the set of element types Reduce can combine.
type Number interface {
	~int64 | ~float64
}

// Broadcast sends payload from root to every other process and returns
// the payload on every process. Non-root callers pass nil.
func Broadcast(ctx context.Context, t Transport, root int, payload []byte) ([]byte, error) {
	if err := CheckRank(root, t.Size()); err != nil {
		return nil, err
	}

	if t.Rank() != root {
		data, err := t.Receive(ctx, root, TagBroadcast)
		if err != nil {
			return nil, fmt.Errorf("broadcast from %d: %w", root, err)
		}
		return data, nil
	}

	for rank := 0; rank < t.Size(); rank++ {
		if rank == root {
			continue
		}
		if err := t.Send(ctx, rank, TagBroadcast, payload); err != nil {
			return nil, fmt.Errorf("broadcast to %d: %w", rank, err)
		}
	}
	return payload, nil
}

// Gather collects one payload per process on root, indexed by rank.
// Returns nil on every other process.
func Gather(ctx context.Context, t Transport, root int, payload []byte) ([][]byte, error) {
	if err := CheckRank(root, t.Size()); err != nil {
		return nil, err
	}

	if t.Rank() != root {
		if err := t.Send(ctx, root, TagGather, payload); err != nil {
			return nil, fmt.Errorf("gather to %d: %w", root, err)
		}
		return nil, nil
	}

	parts := make([][]byte, t.Size())
	for rank := range parts {
		if rank == root {
			parts[rank] = payload
			continue
		}
		data, err := t.Receive(ctx, rank, TagGather)
		if err != nil {
			return nil, fmt.Errorf("gather from %d: %w", rank, err)
		}
		parts[rank] = data
	}
	return parts, nil
}

// AllGather collects one payload per process on every process, indexed by
// rank. It is a Gather on rank 0 followed by a Broadcast.
func AllGather(ctx context.Context, t Transport, payload []byte) ([][]byte, error) {
	parts, err := Gather(ctx, t, 0, payload)
	if err != nil {
		return nil, err
	}

	var encoded []byte
	if t.Rank() == 0 {
		var buf bytes.Buffer
		if _, err := xdr.Marshal(&buf, parts); err != nil {
			return nil, fmt.Errorf("encode gathered payloads: %w", err)
		}
		encoded = buf.Bytes()
	}

	encoded, err = Broadcast(ctx, t, 0, encoded)
	if err != nil {
		return nil, err
	}
	if t.Rank() == 0 {
		return parts, nil
	}

	parts = nil
	if _, err := xdr.Unmarshal(bytes.NewReader(encoded), &parts); err != nil {
		return nil, fmt.Errorf("decode gathered payloads: %w", err)
	}
	if len(parts) != t.Size() {
		return nil, fmt.Errorf("gathered %d payloads for %d processes", len(parts), t.Size())
	}
	return parts, nil
}

// Barrier returns once every process has entered it.
func Barrier(ctx context.Context, t Transport) error {
	if t.Rank() != 0 {
		if err := t.Send(ctx, 0, TagBarrier, nil); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
		if _, err := t.Receive(ctx, 0, TagBarrier); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
		return nil
	}

	for rank := 1; rank < t.Size(); rank++ {
		if _, err := t.Receive(ctx, rank, TagBarrier); err != nil {
			return fmt.Errorf("barrier wait for %d: %w", rank, err)
		}
	}
	for rank := 1; rank < t.Size(); rank++ {
		if err := t.Send(ctx, rank, TagBarrier, nil); err != nil {
			return fmt.Errorf("barrier release %d: %w", rank, err)
		}
	}
	return nil
}

// Reduce combines values element-wise across every process with op. The
// result is returned on root only; other processes get nil. Every process
// must pass the same number of values.
func Reduce[T Number](ctx context.Context, t Transport, root int, values []T, op Op) ([]T, error) {
	if err := CheckRank(root, t.Size()); err != nil {
		return nil, err
	}

	if t.Rank() != root {
		var buf bytes.Buffer
		if _, err := xdr.Marshal(&buf, values); err != nil {
			return nil, fmt.Errorf("encode reduce values: %w", err)
		}
		if err := t.Send(ctx, root, TagReduce, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("reduce to %d: %w", root, err)
		}
		return nil, nil
	}

	result := append([]T(nil), values...)
	for rank := 0; rank < t.Size(); rank++ {
		if rank == root {
			continue
		}
		data, err := t.Receive(ctx, rank, TagReduce)
		if err != nil {
			return nil, fmt.Errorf("reduce from %d: %w", rank, err)
		}

		var peer []T
		if _, err := xdr.Unmarshal(bytes.NewReader(data), &peer); err != nil {
			return nil, fmt.Errorf("decode reduce values from %d: %w", rank, err)
		}
		if len(peer) != len(result) {
			return nil, fmt.Errorf("reduce: rank %d sent %d values, expected %d", rank, len(peer), len(result))
		}
		for i, v := range peer {
			result[i] = combine(op, result[i], v)
		}
	}
	return result, nil
}

func combine[T Number](op Op, a, b T) T {
	switch op {
	case OpMax:
		return max(a, b)
	case OpMin:
		return min(a, b)
	default:
		return a + b
	}
}
