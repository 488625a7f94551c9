package core

import (
	"sort"
	"sync"
)

// DefaultChannel is where every connection lands after registration.
// It exists for the lifetime of the server, even when empty.
const DefaultChannel = "general"

type entry struct {
	nickname string
	channel  string
	peer     Peer
}

// Registry is the authoritative mapping of connection id to nickname,
// channel membership, and outbound peer handle.
//
// One mutex guards the connection table and the channel member sets
// together; every transition updates both inside a single critical
// section, so no caller can observe a connection in zero or two
// channels. Methods that feed network fan-out return snapshots taken
// under the lock; callers send after the lock is released.
type Registry struct {
	mu       sync.Mutex
	conns    map[string]*entry
	channels map[string]map[string]struct{}
}

// NewRegistry builds an empty registry with the default channel seeded.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		channels: map[string]map[string]struct{}{
			DefaultChannel: {},
		},
	}
}

// Register adds a connection to the table and to the default channel.
// Nicknames are unique across live connections; a taken nickname is
// rejected so that private message addressing stays unambiguous.
func (r *Registry) Register(id, nickname string, peer Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return ErrDuplicateID
	}
	for _, e := range r.conns {
		if e.nickname == nickname {
			return ErrNicknameTaken
		}
	}

	r.conns[id] = &entry{nickname: nickname, channel: DefaultChannel, peer: peer}
	r.channels[DefaultChannel][id] = struct{}{}
	return nil
}

// Deregister removes a connection from its channel and the table,
// returning the nickname and channel it held. Calling it again for the
// same id is a no-op.
func (r *Registry) Deregister(id string) (nickname, channel string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.conns[id]
	if !exists {
		return "", "", false
	}
	if members, exists := r.channels[e.channel]; exists {
		delete(members, id)
	}
	delete(r.conns, id)
	return e.nickname, e.channel, true
}

// MoveChannel transfers a connection to newChannel, creating the
// channel if needed, and returns the channel it left. Removal from the
// old set, insertion into the new one, and the recorded channel update
// happen in one critical section.
func (r *Registry) MoveChannel(id, newChannel string) (previous string, err error) {
	if newChannel == "" {
		return "", ErrEmptyChannel
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.conns[id]
	if !exists {
		return "", ErrNotRegistered
	}

	members, exists := r.channels[newChannel]
	if !exists {
		members = make(map[string]struct{})
		r.channels[newChannel] = members
	}

	previous = e.channel
	if old, exists := r.channels[previous]; exists {
		delete(old, id)
	}
	members[id] = struct{}{}
	e.channel = newChannel
	return previous, nil
}

// MembersOf returns the peers currently in a channel. The slice is a
// snapshot; iterating and sending after the lock is released is safe.
func (r *Registry) MembersOf(channel string) []Peer {
	return r.MembersExcept(channel, "")
}

// MembersExcept is MembersOf minus one connection, used for broadcasts
// that exclude the originator.
func (r *Registry) MembersExcept(channel, exceptID string) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.channels[channel]
	if !exists {
		return nil
	}
	peers := make([]Peer, 0, len(members))
	for id := range members {
		if id == exceptID {
			continue
		}
		if e, exists := r.conns[id]; exists {
			peers = append(peers, e.peer)
		}
	}
	return peers
}

// FindByNickname resolves a nickname to its peer. Nicknames are unique
// (enforced by Register), so at most one connection matches.
func (r *Registry) FindByNickname(nickname string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.conns {
		if e.nickname == nickname {
			return e.peer, true
		}
	}
	return nil, false
}

// ChannelNames returns a sorted snapshot of all channel names.
func (r *Registry) ChannelNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UsersOf returns a sorted snapshot of the nicknames in a channel.
// An unknown channel yields an empty list, not an error.
func (r *Registry) UsersOf(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.channels[channel]
	if !exists {
		return []string{}
	}
	users := make([]string, 0, len(members))
	for id := range members {
		if e, exists := r.conns[id]; exists {
			users = append(users, e.nickname)
		}
	}
	sort.Strings(users)
	return users
}

// NicknameOf reports the nickname recorded for a connection.
func (r *Registry) NicknameOf(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.conns[id]
	if !exists {
		return "", false
	}
	return e.nickname, true
}

// ChannelOf reports the channel recorded for a connection.
func (r *Registry) ChannelOf(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.conns[id]
	if !exists {
		return "", false
	}
	return e.channel, true
}

// PeerOf returns the outbound handle for a connection.
func (r *Registry) PeerOf(id string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.conns[id]
	if !exists {
		return nil, false
	}
	return e.peer, true
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
