package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/netchat-io/netchat-server/internal/proto"
)

// fakePeer records everything sent to it.
type fakePeer struct {
	mu   sync.Mutex
	msgs []proto.Message
	down bool
}

func (p *fakePeer) Send(m proto.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return errors.New("peer down")
	}
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *fakePeer) received() []proto.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]proto.Message, len(p.msgs))
	copy(out, p.msgs)
	return out
}

func (p *fakePeer) countOfType(typ string) int {
	n := 0
	for _, m := range p.received() {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (p *fakePeer) lastOfType(t *testing.T, typ string) proto.Message {
	t.Helper()
	msgs := p.received()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == typ {
			return msgs[i]
		}
	}
	t.Fatalf("no message of type %q received; got %+v", typ, msgs)
	return proto.Message{}
}

func newTestRouter() (*Router, *Registry) {
	logger := zerolog.Nop()
	registry := NewRegistry()
	return NewRouter(registry, &logger), registry
}

// mustConnect registers a peer through the router's lifecycle hook.
func mustConnect(t *testing.T, r *Router, id, nickname string) *fakePeer {
	t.Helper()
	peer := &fakePeer{}
	if err := r.Connect(id, nickname, peer); err != nil {
		t.Fatalf("connect %s: %v", nickname, err)
	}
	return peer
}

// assertSingleMembership checks the core invariant: the connection sits
// in exactly one channel member set, the one its record names.
func assertSingleMembership(t *testing.T, reg *Registry, id string) {
	t.Helper()

	nickname, ok := reg.NicknameOf(id)
	if !ok {
		t.Fatalf("connection %s not registered", id)
	}
	recorded, _ := reg.ChannelOf(id)

	found := 0
	for _, channel := range reg.ChannelNames() {
		for _, user := range reg.UsersOf(channel) {
			if user == nickname {
				found++
				if channel != recorded {
					t.Fatalf("%s is in %q but recorded in %q", nickname, channel, recorded)
				}
			}
		}
	}
	if found != 1 {
		t.Fatalf("%s appears in %d channels, want exactly 1", nickname, found)
	}
}
