package tcp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/wire"
)

// acceptLoop accepts peer connections until the transport closes.
func (t *Transport) acceptLoop() {
	defer t.activeConns.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed() {
				return
			}
			logger.Error("Accepting peer connection: %v", err)
			t.box.Fail(fmt.Errorf("accept: %w", err))
			return
		}

		setNoDelay(conn)
		t.track(conn)
		go t.serve(conn, -1)
	}
}

// track registers conn so that Close can unblock its reader.
func (t *Transport) track(conn net.Conn) {
	t.activeConns.Add(1)
	t.inbound.Store(conn.RemoteAddr().String(), conn)
}

// serve reads frames from an inbound connection into the mailbox. from is
// the peer rank when it is already known, -1 otherwise.
func (t *Transport) serve(conn net.Conn, from int) {
	defer func() {
		t.inbound.Delete(conn.RemoteAddr().String())
		_ = conn.Close()
		t.activeConns.Done()
	}()

	for {
		header, err := wire.ReadFrameHeader(conn)
		if err != nil {
			t.readFailed(conn, from, err)
			return
		}

		if !bytes.Equal(header.Job[:], t.job[:]) {
			err := fmt.Errorf("%w: %s sent a frame for another job", ErrForeignJob, conn.RemoteAddr())
			logger.Error("%v", err)
			t.box.Fail(err)
			return
		}
		if err := group.CheckRank(int(header.From), t.size); err != nil {
			t.box.Fail(fmt.Errorf("frame from %s: %w", conn.RemoteAddr(), err))
			return
		}
		from = int(header.From)

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			t.readFailed(conn, from, err)
			return
		}

		if err := t.box.Put(from, group.Tag(header.Tag), payload); err != nil {
			return
		}
	}
}

// readFailed classifies a read error. A clean EOF between frames means the
// peer finished and closed; anything else loses the peer and aborts the job.
func (t *Transport) readFailed(conn net.Conn, from int, err error) {
	if t.closed() {
		return
	}

	if errors.Is(err, io.EOF) {
		if from >= 0 {
			logger.Debug("Rank %d closed its connection", from)
			t.box.FailSource(from, group.ErrPeerClosed)
		}
		return
	}

	err = fmt.Errorf("connection from rank %d (%s) lost: %w", from, conn.RemoteAddr(), err)
	logger.Error("%v", err)
	t.box.Fail(err)
}
