package tcp

import (
	"net"
	"sync"

	"github.com/netchat-io/netchat-server/internal/proto"
	"github.com/netchat-io/netchat-server/internal/utils"
)

// Conn wraps one accepted TCP connection with its frame decoder and a
// serialized write path. Broadcasts fan out from many goroutines at
// once; the write mutex keeps their frames from interleaving. It is
// independent of the registry lock and no registry method holds that
// lock across Send.
type Conn struct {
	id  string
	nc  net.Conn
	dec *proto.Decoder

	wmu sync.Mutex
}

func newConn(nc net.Conn) *Conn {
	return &Conn{
		id:  utils.NewID(),
		nc:  nc,
		dec: proto.NewDecoder(nc),
	}
}

// ID is the connection's stable registry identity.
func (c *Conn) ID() string {
	return c.id
}

// Send encodes and writes one frame. A write failure closes the
// connection so its read loop unblocks and runs the usual teardown.
func (c *Conn) Send(m proto.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.nc.Write(proto.Encode(m)); err != nil {
		_ = c.nc.Close()
		return err
	}
	return nil
}

// Close shuts the underlying socket.
func (c *Conn) Close() error {
	return c.nc.Close()
}
