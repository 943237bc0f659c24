// Package lifecycle owns the per-connection state machine of the relay.
//
// A connection starts Open-Anonymous, becomes Open-Named once it announces a
// username, and ends Closed. Every inbound event enters through Dispatch,
// which switches on the event kind and the connection's current state.
// All transitions run under one mutex, so a registry mutation and the
// fan-out it triggers are atomic with respect to other connections' events.
package lifecycle

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Tyrowin/relay/internal/broadcast"
	"github.com/Tyrowin/relay/internal/logx"
	"github.com/Tyrowin/relay/internal/presence"
	"github.com/Tyrowin/relay/internal/protocol"
	"github.com/Tyrowin/relay/internal/session"
)

// State is a connection's lifecycle state.
type State int

const (
	StateClosed State = iota
	StateAnonymous
	StateNamed
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "open-anonymous"
	case StateNamed:
		return "open-named"
	default:
		return "closed"
	}
}

// Manager drives connections through their lifecycle.
type Manager struct {
	mu       sync.Mutex
	states   map[string]State
	conns    *broadcast.Set
	registry *session.Registry
	router   *broadcast.Router
	notifier *presence.Notifier
	log      logx.Logger
}

// New wires a manager over the given connection set and registry.
func New(conns *broadcast.Set, registry *session.Registry, router *broadcast.Router, log logx.Logger) *Manager {
	return &Manager{
		states:   make(map[string]State),
		conns:    conns,
		registry: registry,
		router:   router,
		notifier: presence.NewNotifier(registry, router, log.With(logx.String("component", "presence"))),
		log:      log,
	}
}

// Open admits a freshly accepted connection in the Open-Anonymous state.
func (m *Manager) Open(conn broadcast.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[conn.ID()] = StateAnonymous
	m.conns.Add(conn)
	m.log.Info("client connected", logx.String("conn", conn.ID()), logx.Int("clients", m.conns.Len()))
}

// Dispatch applies one inbound event from connID. Events for unknown or
// closed connections are discarded.
func (m *Manager) Dispatch(connID string, in protocol.Inbound) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[connID]
	if !ok {
		m.log.Debug("discarding event for closed connection",
			logx.String("conn", connID), logx.String("event", string(in.Event)))
		return
	}

	switch in.Event {
	case protocol.EventSetUsername:
		m.setUsername(connID, state, in.Username)
	case protocol.EventSendMessage:
		if !m.requireNamed(connID, state, in.Event) {
			return
		}
		m.relay(connID, in, protocol.ReceiveMessage)
	case protocol.EventSendFile:
		if !m.requireNamed(connID, state, in.Event) {
			return
		}
		m.relay(connID, in, protocol.ReceiveFile)
	default:
		m.log.Debug("ignoring unknown event", logx.String("conn", connID), logx.String("event", string(in.Event)))
	}
}

// Close moves connID to Closed and releases its id. A connection that
// never announced a username leaves without any notification.
func (m *Manager) Close(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[connID]; !ok {
		return
	}
	delete(m.states, connID)
	m.conns.Remove(connID)

	entry, ok := m.registry.Unregister(connID)
	if !ok {
		m.log.Info("client disconnected", logx.String("conn", connID), logx.Int("clients", m.conns.Len()))
		return
	}

	m.log.Info("user left",
		logx.String("conn", connID),
		logx.String("username", entry.Username),
		logx.Duration("session", sinceConnected(entry)),
		logx.Int("clients", m.conns.Len()))
	m.notifier.Left(connID, entry.Username)
}

// State reports connID's current state; unknown ids are Closed.
func (m *Manager) State(connID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[connID]
}

func (m *Manager) setUsername(connID string, state State, username string) {
	if state == StateNamed {
		// Renames overwrite silently: no join/leave pair, no roster push.
		prev, _ := m.registry.Lookup(connID)
		m.registry.Register(connID, username)
		m.log.Info("user renamed", logx.String("conn", connID),
			logx.String("from", prev.Username), logx.String("username", username))
		return
	}

	m.registry.Register(connID, username)

	m.states[connID] = StateNamed
	m.log.Info("user joined", logx.String("conn", connID), logx.String("username", username))
	m.notifier.Joined(connID, username)
}

func (m *Manager) requireNamed(connID string, state State, event protocol.Event) bool {
	if state == StateNamed {
		return true
	}
	m.log.Debug("discarding event from anonymous connection",
		logx.String("conn", connID), logx.String("event", string(event)))
	return false
}

func (m *Manager) relay(connID string, in protocol.Inbound, encode func(json.RawMessage) ([]byte, error)) {
	msg, err := encode(in.Payload)
	if err != nil {
		m.log.Warn("encode relayed event", logx.String("conn", connID), logx.Err(err))
		return
	}

	if m.log.Enabled(logx.LevelDebug) {
		fields := []logx.Field{logx.String("conn", connID), logx.String("event", string(in.Event))}
		switch in.Event {
		case protocol.EventSendFile:
			f := protocol.ParseFile(in.Payload)
			fields = append(fields, logx.String("filename", f.Filename), logx.Int64("size", f.Size))
		default:
			fields = append(fields, logx.Int("body_len", len(protocol.ParseText(in.Payload).Body)))
		}
		m.log.Debug("relaying event", fields...)
	}

	m.router.BroadcastToOthers(connID, msg)
}

func sinceConnected(e session.Entry) time.Duration {
	if e.ConnectedAt.IsZero() {
		return 0
	}
	return time.Since(e.ConnectedAt).Round(time.Second)
}
