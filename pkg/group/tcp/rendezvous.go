package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/lustrebulk/internal/logger"
)

// hello is sent by every rank but 0 to register with the coordinator.
type hello struct {
	Rank int32
	Size int32
	Addr string
	Job  string
}

// roster is the coordinator's answer to a hello.
type roster struct {
	Job   [16]byte
	Addrs []string
	Err   string
}

// coordinate runs the rank 0 side of the rendezvous.
func (t *Transport) coordinate(ctx context.Context, opts Options) error {
	ln := opts.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", opts.Coordinator)
		if err != nil {
			return fmt.Errorf("listen on coordinator address %s: %w", opts.Coordinator, err)
		}
	}
	t.listener = ln

	t.job = uuid.New()
	if opts.JobID != "" {
		job, err := uuid.Parse(opts.JobID)
		if err != nil {
			return fmt.Errorf("parse job id %q: %w", opts.JobID, err)
		}
		t.job = job
	}

	t.peers = make([]string, t.size)
	t.peers[0] = ln.Addr().String()
	logger.Info("Coordinator for job %s listening on %s, waiting for %d ranks", t.job, t.peers[0], t.size-1)

	// Accept blocks without a context; closing the listener unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	registered := make(map[int]net.Conn, t.size-1)
	for len(registered) < t.size-1 {
		conn, err := ln.Accept()
		if err != nil {
			for _, c := range registered {
				_ = c.Close()
			}
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return fmt.Errorf("%w: %d of %d ranks registered: %v", ErrRendezvous, len(registered), t.size-1, err)
		}

		var h hello
		if _, err := xdr.Unmarshal(conn, &h); err != nil {
			logger.Warn("Discarding registration from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		if reason := t.checkHello(h, registered); reason != "" {
			logger.Warn("Rejecting rank %d from %s: %s", h.Rank, conn.RemoteAddr(), reason)
			_, _ = xdr.Marshal(conn, &roster{Err: reason})
			_ = conn.Close()
			continue
		}

		setNoDelay(conn)
		registered[int(h.Rank)] = conn
		t.peers[h.Rank] = h.Addr
		logger.Debug("Rank %d registered from %s (listening on %s)", h.Rank, conn.RemoteAddr(), h.Addr)
	}

	// Rank 0 never accepts again; the hello connections carry inbound traffic.
	_ = ln.Close()

	answer := roster{Job: [16]byte(t.job), Addrs: t.peers}
	for rank, conn := range registered {
		if _, err := xdr.Marshal(conn, &answer); err != nil {
			return fmt.Errorf("%w: send roster to rank %d: %v", ErrRendezvous, rank, err)
		}
	}
	for rank, conn := range registered {
		t.track(conn)
		go t.serve(conn, rank)
	}

	logger.Info("All %d ranks registered for job %s", t.size, t.job)
	return nil
}

func (t *Transport) checkHello(h hello, registered map[int]net.Conn) string {
	switch {
	case int(h.Size) != t.size:
		return fmt.Sprintf("job size %d, coordinator expects %d", h.Size, t.size)
	case h.Rank <= 0 || int(h.Rank) >= t.size:
		return fmt.Sprintf("rank %d out of range", h.Rank)
	case h.Job != "" && h.Job != t.job.String():
		return fmt.Sprintf("job %s, coordinator runs %s", h.Job, t.job)
	}
	if _, dup := registered[int(h.Rank)]; dup {
		return fmt.Sprintf("rank %d already registered", h.Rank)
	}
	return ""
}

// register runs the side of the rendezvous of every rank but 0.
func (t *Transport) register(ctx context.Context, opts Options) error {
	ln := opts.Listener
	if ln == nil {
		addr := opts.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
	}
	t.listener = ln

	advertised, err := advertise(ln, opts)
	if err != nil {
		return err
	}

	conn, err := dialCoordinator(ctx, opts.Coordinator)
	if err != nil {
		return err
	}

	// Reads on conn ignore ctx; a deadline in the past unblocks them.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	answer, err := exchangeHello(conn, hello{
		Rank: int32(t.rank),
		Size: int32(t.size),
		Addr: advertised,
		Job:  opts.JobID,
	})
	if !stop() {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrRendezvous, ctx.Err())
	}
	if err != nil {
		_ = conn.Close()
		return err
	}
	if len(answer.Addrs) != t.size {
		_ = conn.Close()
		return fmt.Errorf("%w: roster lists %d ranks, expected %d", ErrRendezvous, len(answer.Addrs), t.size)
	}

	t.job = uuid.UUID(answer.Job)
	t.peers = answer.Addrs
	t.outbound[0] = &outConn{conn: conn}

	t.activeConns.Add(1)
	go t.acceptLoop()
	return nil
}

func exchangeHello(conn net.Conn, h hello) (*roster, error) {
	if _, err := xdr.Marshal(conn, &h); err != nil {
		return nil, fmt.Errorf("%w: send hello: %v", ErrRendezvous, err)
	}

	var answer roster
	if _, err := xdr.Unmarshal(conn, &answer); err != nil {
		return nil, fmt.Errorf("%w: read roster: %v", ErrRendezvous, err)
	}
	if answer.Err != "" {
		return nil, fmt.Errorf("%w: coordinator rejected rank %d: %s", ErrRendezvous, h.Rank, answer.Err)
	}
	return &answer, nil
}

// dialCoordinator retries until the coordinator accepts or ctx is done;
// ranks are usually started before rank 0 is listening.
func dialCoordinator(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	backoff := 50 * time.Millisecond

	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			setNoDelay(conn)
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: coordinator %s: %v", ErrRendezvous, addr, err)
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}
