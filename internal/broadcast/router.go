package broadcast

import (
	"fmt"

	"github.com/Tyrowin/relay/internal/logx"
)

// DropFunc is told about every recipient a fan-out failed to reach.
type DropFunc func(conn Connection, err error)

// Deliver sends data to every target except the one whose id equals skipID
// (pass "" to skip none). A failure on one target never stops delivery to
// the rest; failures are passed to onDrop when it is non-nil. It returns the
// number of targets that accepted the data.
func Deliver(targets []Connection, skipID string, data []byte, onDrop DropFunc) int {
	delivered := 0
	for _, conn := range targets {
		if conn == nil || (skipID != "" && conn.ID() == skipID) {
			continue
		}
		if err := safeSend(conn, data); err != nil {
			if onDrop != nil {
				onDrop(conn, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

func safeSend(conn Connection, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broadcast: send panicked: %v", r)
		}
	}()
	return conn.Send(data)
}

// Router delivers events to the connections held in a Set.
type Router struct {
	conns  *Set
	log    logx.Logger
	onDrop DropFunc
}

// NewRouter returns a Router over conns.
func NewRouter(conns *Set, log logx.Logger) *Router {
	return &Router{conns: conns, log: log}
}

// OnDrop registers a hook called after a recipient could not be reached.
// It must be set before the router is used.
func (r *Router) OnDrop(fn DropFunc) {
	r.onDrop = fn
}

// BroadcastToAll delivers data to every open connection.
func (r *Router) BroadcastToAll(data []byte) int {
	return r.fanout("", data)
}

// BroadcastToOthers delivers data to every open connection except originID.
func (r *Router) BroadcastToOthers(originID string, data []byte) int {
	return r.fanout(originID, data)
}

func (r *Router) fanout(skipID string, data []byte) int {
	targets := r.conns.Snapshot()
	n := Deliver(targets, skipID, data, r.drop)
	r.log.Debug("broadcast delivered",
		logx.String("origin", skipID),
		logx.Int("delivered", n),
		logx.Int("open", len(targets)))
	return n
}

func (r *Router) drop(conn Connection, err error) {
	r.log.Warn("dropping event for unreachable client", logx.String("conn", conn.ID()), logx.Err(err))
	if r.onDrop != nil {
		r.onDrop(conn, err)
	}
}
