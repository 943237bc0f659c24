// Package presence turns session registry changes into userJoined,
// userLeft and updateUsers notifications.
package presence

import (
	"github.com/Tyrowin/relay/internal/logx"
	"github.com/Tyrowin/relay/internal/protocol"
)

// Broadcaster is the fan-out the notifier routes through.
type Broadcaster interface {
	BroadcastToAll(data []byte) int
	BroadcastToOthers(originID string, data []byte) int
}

// Roster supplies the authoritative list of registered usernames.
type Roster interface {
	Snapshot() []string
}

// Notifier announces presence changes. It is driven by the lifecycle
// manager after a registry mutation, never by client input directly.
type Notifier struct {
	roster Roster
	out    Broadcaster
	log    logx.Logger
}

// NewNotifier returns a Notifier that reads the roster from roster and
// delivers presence events through out.
func NewNotifier(roster Roster, out Broadcaster, log logx.Logger) *Notifier {
	return &Notifier{roster: roster, out: out, log: log}
}

// Joined tells everyone but origin that username arrived, then sends the
// fresh roster to everyone.
func (n *Notifier) Joined(originID, username string) {
	n.announce(originID, username, protocol.UserJoined)
}

// Left tells everyone but origin that username departed, then sends the
// fresh roster to everyone.
func (n *Notifier) Left(originID, username string) {
	n.announce(originID, username, protocol.UserLeft)
}

func (n *Notifier) announce(originID, username string, encode func(string) ([]byte, error)) {
	msg, err := encode(username)
	if err != nil {
		n.log.Error("encode presence event", logx.String("conn", originID), logx.Err(err))
	} else {
		n.out.BroadcastToOthers(originID, msg)
	}
	n.broadcastRoster()
}

func (n *Notifier) broadcastRoster() {
	users := n.roster.Snapshot()
	msg, err := protocol.UpdateUsers(users)
	if err != nil {
		n.log.Error("encode roster", logx.Err(err))
		return
	}
	n.out.BroadcastToAll(msg)
	n.log.Debug("roster updated", logx.Strings("users", users))
}
