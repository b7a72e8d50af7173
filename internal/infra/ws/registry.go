package ws

import "sync"

// Channel is a live push connection. *websocket.Conn satisfies it.
type Channel interface {
	WriteJSON(v interface{}) error
	Close() error
}

// safeChannel serializes writes to the underlying connection. Gorilla
// conns allow at most one concurrent writer, and pushes for the same user
// can arrive from many goroutines at once.
type safeChannel struct {
	mu sync.Mutex
	ch Channel
}

func newSafeChannel(ch Channel) *safeChannel {
	return &safeChannel{ch: ch}
}

func (c *safeChannel) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.WriteJSON(v)
}

func (c *safeChannel) Close() error { return c.ch.Close() }

type record struct {
	ch       Channel
	username string
}

// ConnectionRegistry is the bidirectional map between channel ids and
// usernames. A channel may exist unauthenticated; the username link is
// attached later by an auth message. At most one channel per username:
// binding a new channel supersedes the previous mapping.
type ConnectionRegistry struct {
	mu       sync.Mutex
	channels map[string]*record // channel id -> record
	users    map[string]string  // username -> channel id
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		channels: make(map[string]*record),
		users:    make(map[string]string),
	}
}

// Register adds an open channel with no user attached yet. Channel ids
// are client-supplied, so a reconnect may reuse one; the displaced
// channel, if any, is returned for the caller to close.
func (r *ConnectionRegistry) Register(channelID string, ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	var displaced Channel
	if old, ok := r.channels[channelID]; ok {
		displaced = old.ch
		if old.username != "" && r.users[old.username] == channelID {
			delete(r.users, old.username)
		}
	}
	r.channels[channelID] = &record{ch: ch}
	return displaced
}

// Bind attaches a username to a previously registered channel. Any older
// channel mapped to the same username loses the mapping.
func (r *ConnectionRegistry) Bind(channelID, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.channels[channelID]
	if !ok {
		return false
	}
	rec.username = username
	r.users[username] = channelID
	return true
}

// Unregister removes a channel, but only if the id still maps to the
// given channel. A superseded connection closing late must not remove
// the registration that replaced it. The reverse username mapping is
// removed under the same rule.
func (r *ConnectionRegistry) Unregister(channelID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.channels[channelID]
	if !ok || rec.ch != ch {
		return
	}
	delete(r.channels, channelID)
	if rec.username != "" && r.users[rec.username] == channelID {
		delete(r.users, rec.username)
	}
}

// Lookup returns the live channel for a username, if any.
func (r *ConnectionRegistry) Lookup(username string) (string, Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.users[username]
	if !ok {
		return "", nil, false
	}
	rec, ok := r.channels[id]
	if !ok {
		delete(r.users, username)
		return "", nil, false
	}
	return id, rec.ch, true
}
