// Package distribute moves content records from the coordinator to the
// processes that will act on them.
//
// Distribution is two-level. The coordinator assigns every storage target
// to a node and sends each node leader the records of the targets that
// node owns. Each leader then deals its records round-robin to the
// processes of its node.
package distribute

import (
	"context"
	"fmt"

	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/wire"
)

// SendContent transfers list to dest.
//
// A chunk count goes first; then each chunk travels as four messages:
// record count, filename blob length, filename blob and values. Chunks
// keep every filename blob within limit bytes (wire.MaxBlobLength when
// limit is zero), so lists of any size can be sent.
func SendContent(ctx context.Context, t group.Transport, dest int, list []content.StridedContent, limit int) error {
	batches, err := wire.SplitContent(list, limit)
	if err != nil {
		return fmt.Errorf("split content for rank %d: %w", dest, err)
	}

	if err := t.Send(ctx, dest, group.TagContentChunks, wire.EncodeCount(int32(len(batches)))); err != nil {
		return fmt.Errorf("send chunk count to rank %d: %w", dest, err)
	}

	for i, batch := range batches {
		packed, err := wire.PackContent(batch)
		if err != nil {
			return fmt.Errorf("pack chunk %d for rank %d: %w", i, dest, err)
		}

		parts := []struct {
			tag  group.Tag
			data []byte
		}{
			{group.TagContentCount, wire.EncodeCount(packed.Count)},
			{group.TagContentLength, wire.EncodeLength(uint64(len(packed.Names)))},
			{group.TagContentNames, packed.Names},
			{group.TagContentValues, wire.EncodeValues(packed.Values)},
		}
		for _, p := range parts {
			if err := t.Send(ctx, dest, p.tag, p.data); err != nil {
				return fmt.Errorf("send %s of chunk %d to rank %d: %w", p.tag, i, dest, err)
			}
		}
	}
	return nil
}

// ReceiveContent is the inverse of SendContent: it blocks until every
// chunk sent by src has arrived and returns the records in send order.
func ReceiveContent(ctx context.Context, t group.Transport, src int) ([]content.StridedContent, error) {
	data, err := t.Receive(ctx, src, group.TagContentChunks)
	if err != nil {
		return nil, fmt.Errorf("receive chunk count from rank %d: %w", src, err)
	}
	chunks, err := wire.DecodeCount(data)
	if err != nil {
		return nil, err
	}
	if chunks < 0 {
		return nil, fmt.Errorf("chunk count %d from rank %d: %w", chunks, src, wire.ErrMalformed)
	}

	var list []content.StridedContent
	for i := 0; i < int(chunks); i++ {
		batch, err := receiveChunk(ctx, t, src)
		if err != nil {
			return nil, fmt.Errorf("chunk %d from rank %d: %w", i, src, err)
		}
		list = append(list, batch...)
	}
	return list, nil
}

func receiveChunk(ctx context.Context, t group.Transport, src int) ([]content.StridedContent, error) {
	data, err := t.Receive(ctx, src, group.TagContentCount)
	if err != nil {
		return nil, err
	}
	count, err := wire.DecodeCount(data)
	if err != nil {
		return nil, err
	}

	data, err = t.Receive(ctx, src, group.TagContentLength)
	if err != nil {
		return nil, err
	}
	length, err := wire.DecodeLength(data)
	if err != nil {
		return nil, err
	}

	names, err := t.Receive(ctx, src, group.TagContentNames)
	if err != nil {
		return nil, err
	}
	if uint64(len(names)) != length {
		return nil, fmt.Errorf("received %d name bytes, announced %d: %w", len(names), length, wire.ErrMalformed)
	}

	data, err = t.Receive(ctx, src, group.TagContentValues)
	if err != nil {
		return nil, err
	}
	values, err := wire.DecodeValues(data)
	if err != nil {
		return nil, err
	}

	packed := wire.PackedContent{Count: count, Names: names, Values: values}
	return packed.Unpack()
}

// BroadcastFileSet replicates the file set of root to every process.
// Non-root callers pass nil and get the decoded copy.
func BroadcastFileSet(ctx context.Context, t group.Transport, root int, fs *content.FileSet) (*content.FileSet, error) {
	var payload []byte
	if t.Rank() == root {
		var err error
		if payload, err = wire.PackFileSet(fs); err != nil {
			return nil, err
		}
	}

	payload, err := group.Broadcast(ctx, t, root, payload)
	if err != nil {
		return nil, fmt.Errorf("broadcast file set: %w", err)
	}
	if t.Rank() == root {
		return fs, nil
	}
	return wire.UnpackFileSet(payload)
}
