package core

import "github.com/netchat-io/netchat-server/internal/proto"

// Peer is the outbound side of one client connection. Implementations
// must serialize concurrent Send calls onto the underlying stream; the
// registry fans broadcasts out from multiple goroutines at once.
//
// Send is never called while the registry lock is held, so a slow peer
// cannot stall registry operations for other connections.
type Peer interface {
	Send(m proto.Message) error
}
