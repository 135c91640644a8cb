package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/logging"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// TCPAdapter is a concrete network Adapter: one TCP listener plus any
// number of dialed outbound connections, each framed as newline-delimited
// JSON. Grounded directly on the teacher's
// internal/network.NetworkManager (net.Listen, bufio.Scanner framing,
// per-connection goroutine, connections map) but scoped to channel
// establish/send/receive only — no DHT, no network-membership bookkeeping.
type TCPAdapter struct {
	dir      *Directory
	dispatch DispatchFunc
	log      *logging.Logger

	listenAddr string

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	conns    map[ids.ChannelID]net.Conn

	// OnChannelAdded, if set, is invoked for every channel this adapter
	// creates (accepted or dialed) right after registration with the
	// Directory. The Repo wires this to feed MsgChannelAdded into the
	// dispatch loop — accepted connections have no other point at which
	// the owning Repo learns a new ChannelID exists.
	OnChannelAdded func(*Channel)
}

// NewTCPAdapter constructs a TCPAdapter that listens on listenAddr (":0"
// for an ephemeral port) and registers every accepted or dialed connection
// with dir as a KindNetwork channel.
func NewTCPAdapter(dir *Directory, listenAddr string, dispatch DispatchFunc, log *logging.Logger) *TCPAdapter {
	return &TCPAdapter{
		dir:        dir,
		dispatch:   dispatch,
		log:        log,
		listenAddr: listenAddr,
		conns:      make(map[ids.ChannelID]net.Conn),
	}
}

func (a *TCPAdapter) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return fmt.Errorf("tcp adapter: failed to listen on %s: %w", a.listenAddr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.listener = listener
	a.cancel = cancel
	a.mu.Unlock()

	go a.acceptLoop(runCtx)
	return nil
}

func (a *TCPAdapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

func (a *TCPAdapter) acceptLoop(ctx context.Context) {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if a.log != nil {
					a.log.Category("channel", "tcp").Sugar().Warnf("accept error: %v", err)
				}
				continue
			}
		}
		a.adopt(ctx, conn)
	}
}

// Dial opens an outbound connection and registers it the same way an
// accepted connection is registered.
func (a *TCPAdapter) Dial(ctx context.Context, address string) (*Channel, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp adapter: failed to dial %s: %w", address, err)
	}
	return a.adopt(ctx, conn), nil
}

func (a *TCPAdapter) adopt(ctx context.Context, conn net.Conn) *Channel {
	ch := a.dir.NewChannel(KindNetwork, "tcp",
		func(msg proto.Message) error { return a.send(conn, msg) },
		func() { conn.Close() },
	)

	a.mu.Lock()
	a.conns[ch.ID] = conn
	a.mu.Unlock()

	if a.OnChannelAdded != nil {
		a.OnChannelAdded(ch)
	}

	go a.readLoop(ctx, ch, conn)
	return ch
}

func (a *TCPAdapter) send(conn net.Conn, msg proto.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("tcp adapter: failed to encode message: %w", err)
	}
	_, err = fmt.Fprintf(conn, "%s\n", data)
	return err
}

func (a *TCPAdapter) readLoop(ctx context.Context, ch *Channel, conn net.Conn) {
	defer a.RemoveChannel(ch.ID)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg proto.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			if a.log != nil {
				a.log.WithChannel(uint64(ch.ID)).Sugar().Warnf("failed to decode message: %v", err)
			}
			continue
		}
		a.dispatch(ch.ID, msg)
	}
}

func (a *TCPAdapter) RemoveChannel(id ids.ChannelID) error {
	a.mu.Lock()
	conn, ok := a.conns[id]
	delete(a.conns, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	conn.Close()
	if ch, ok := a.dir.Get(id); ok {
		ch.Remove()
	}
	a.dir.Remove(id)
	return nil
}

func (a *TCPAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	listener := a.listener
	conns := make(map[ids.ChannelID]net.Conn, len(a.conns))
	for id, c := range a.conns {
		conns[id] = c
	}
	a.conns = make(map[ids.ChannelID]net.Conn)
	a.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for id, c := range conns {
		c.Close()
		a.dir.Remove(id)
	}
	return nil
}
