// Package tcp implements group.Transport over TCP connections, one OS
// process per rank.
//
// Rendezvous:
//
//	rank 0 listens on the coordinator address.
//	ranks 1..N-1 listen on their own address and dial the coordinator with
//	a hello carrying (rank, size, listen address, job id).
//	once every rank has registered, the coordinator answers each hello with
//	the roster of listen addresses and the job UUID.
//
// After rendezvous a process only ever sends on connections it dialed
// itself: the hello connection to rank 0, and lazily dialed connections to
// the listen address of every other peer. Inbound connections are only
// read. Every frame carries the job UUID; frames from another job are
// rejected and abort the transport.
//
// There are no I/O timeouts once the job runs: a hung peer stalls its
// partner. Options.DialTimeout only bounds the rendezvous.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/wire"
)

var (
	// ErrRendezvous is returned when the processes of a job fail to agree
	// on its membership.
	ErrRendezvous = errors.New("rendezvous failed")

	// ErrForeignJob is returned when a frame belongs to another job.
	ErrForeignJob = errors.New("frame from another job")
)

// Options configures a TCP transport.
type Options struct {
	// Rank of this process, 0..Size-1. Rank 0 is the coordinator.
	Rank int

	// Size is the number of processes in the job.
	Size int

	// Coordinator is the host:port rank 0 listens on.
	Coordinator string

	// ListenAddr is the address ranks other than 0 accept peer
	// connections on. Defaults to ":0" (any interface, ephemeral port).
	ListenAddr string

	// AdvertiseHost is the host name peers use to reach this process.
	// Defaults to the host of ListenAddr, or os.Hostname() when that is
	// unspecified.
	AdvertiseHost string

	// JobID pins the job UUID. On rank 0 an empty JobID generates a new
	// one; on other ranks a non-empty JobID must match the coordinator's.
	JobID string

	// DialTimeout bounds the rendezvous. Zero waits forever.
	DialTimeout time.Duration

	// Listener, when set, is used instead of listening on Coordinator
	// (rank 0) or ListenAddr (other ranks).
	Listener net.Listener
}

// Transport is a group.Transport over TCP.
//
// All methods are safe for concurrent use.
type Transport struct {
	rank  int
	size  int
	job   uuid.UUID
	peers []string

	listener net.Listener
	box      *group.Mailbox

	// outbound holds the connection dialed to each peer, lazily.
	outMu    sync.Mutex
	outbound map[int]*outConn

	// activeConns tracks reader goroutines for Close.
	activeConns sync.WaitGroup

	// inbound maps remote address to accepted connections so Close can
	// unblock their readers.
	inbound sync.Map

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

var _ group.Transport = (*Transport)(nil)

// outConn serializes frames written to one dialed connection.
type outConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial joins the job described by opts and returns once every rank has
// registered with the coordinator.
func Dial(ctx context.Context, opts Options) (*Transport, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("job size %d: %w", opts.Size, ErrRendezvous)
	}
	if err := group.CheckRank(opts.Rank, opts.Size); err != nil {
		return nil, err
	}
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}

	t := &Transport{
		rank:     opts.Rank,
		size:     opts.Size,
		box:      group.NewMailbox(),
		outbound: make(map[int]*outConn),
		shutdown: make(chan struct{}),
	}

	var err error
	if opts.Rank == 0 {
		err = t.coordinate(ctx, opts)
	} else {
		err = t.register(ctx, opts)
	}
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	logger.Debug("Joined job %s as rank %d of %d", t.job, t.rank, t.size)
	return t, nil
}

func (t *Transport) Rank() int { return t.rank }

func (t *Transport) Size() int { return t.size }

// JobID returns the UUID shared by every process of the job.
func (t *Transport) JobID() uuid.UUID { return t.job }

// Send writes one frame to peer to, dialing it on first use. Sending to
// ourselves short-circuits into the local mailbox.
func (t *Transport) Send(ctx context.Context, to int, tag group.Tag, payload []byte) error {
	if t.closed() {
		return group.ErrClosed
	}
	if err := group.CheckRank(to, t.size); err != nil {
		return err
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("payload of %d bytes: %w", len(payload), wire.ErrBlobTooLarge)
	}

	if to == t.rank {
		data := make([]byte, len(payload))
		copy(data, payload)
		return t.box.Put(t.rank, tag, data)
	}

	oc, err := t.connTo(ctx, to)
	if err != nil {
		return err
	}

	header := wire.FrameHeader{
		Magic:  wire.FrameMagic,
		Job:    [16]byte(t.job),
		From:   int32(t.rank),
		Tag:    int32(tag),
		Length: uint32(len(payload)),
	}
	raw, err := header.Encode()
	if err != nil {
		return err
	}

	oc.mu.Lock()
	defer oc.mu.Unlock()

	buffers := net.Buffers{raw, payload}
	if _, err := buffers.WriteTo(oc.conn); err != nil {
		err = fmt.Errorf("send to rank %d: %w", to, err)
		t.box.Fail(err)
		return err
	}
	return nil
}

// Receive returns the next payload from rank from under tag.
func (t *Transport) Receive(ctx context.Context, from int, tag group.Tag) ([]byte, error) {
	if err := group.CheckRank(from, t.size); err != nil {
		return nil, err
	}
	return t.box.Take(ctx, from, tag)
}

// Close closes the listener and every connection. Blocked receives fail
// with group.ErrClosed.
func (t *Transport) Close() error {
	t.shutdownOnce.Do(func() {
		close(t.shutdown)
		t.box.Fail(group.ErrClosed)

		if t.listener != nil {
			_ = t.listener.Close()
		}

		t.outMu.Lock()
		for _, oc := range t.outbound {
			_ = oc.conn.Close()
		}
		t.outMu.Unlock()

		t.inbound.Range(func(_, v any) bool {
			_ = v.(net.Conn).Close()
			return true
		})
	})
	t.activeConns.Wait()
	return nil
}

func (t *Transport) closed() bool {
	select {
	case <-t.shutdown:
		return true
	default:
		return false
	}
}

// connTo returns the dialed connection to peer, dialing it if needed.
func (t *Transport) connTo(ctx context.Context, peer int) (*outConn, error) {
	t.outMu.Lock()
	defer t.outMu.Unlock()

	if oc, ok := t.outbound[peer]; ok {
		return oc, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.peers[peer])
	if err != nil {
		return nil, fmt.Errorf("dial rank %d at %s: %w", peer, t.peers[peer], err)
	}
	setNoDelay(conn)

	oc := &outConn{conn: conn}
	t.outbound[peer] = oc
	logger.Debug("Connected to rank %d at %s", peer, t.peers[peer])
	return oc, nil
}

// advertise returns the address peers should dial to reach ln.
func advertise(ln net.Listener, opts Options) (string, error) {
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return "", err
	}

	if opts.AdvertiseHost != "" {
		host = opts.AdvertiseHost
	} else if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host, err = os.Hostname()
		if err != nil {
			return "", fmt.Errorf("resolve advertise host: %w", err)
		}
	}
	return net.JoinHostPort(host, port), nil
}

func setNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
