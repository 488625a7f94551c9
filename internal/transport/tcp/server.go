package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netchat-io/netchat-server/internal/core"
	"github.com/netchat-io/netchat-server/internal/proto"
)

// Server accepts TCP connections and bridges them to the router: one
// goroutine per connection, failures contained to that connection.
type Server struct {
	addr             string
	handshakeTimeout time.Duration
	router           *core.Router
	log              *zerolog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer builds a TCP server; call Listen then Run.
func NewServer(addr string, handshakeTimeout time.Duration, router *core.Router, logger *zerolog.Logger) *Server {
	return &Server{
		addr:             addr,
		handshakeTimeout: handshakeTimeout,
		router:           router,
		log:              logger,
		conns:            make(map[*Conn]struct{}),
	}
}

// Listen binds the listening socket. A bind failure here is the one
// fatal startup error the server has.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr reports the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run accepts connections until the context is cancelled, then closes
// the listener and every live connection. In-flight sends may be
// abandoned; graceful per-client shutdown is not attempted.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp server listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeAll()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(nc)
		}()
	}
}

func (s *Server) handle(nc net.Conn) {
	conn := newConn(nc)
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	nickname, err := s.handshake(conn)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", nc.RemoteAddr().String()).Msg("handshake failed")
		return
	}

	if err := s.router.Connect(conn.ID(), nickname, conn); err != nil {
		if errors.Is(err, core.ErrNicknameTaken) {
			_ = conn.Send(proto.ErrorMessage("Nickname already in use."))
		}
		s.log.Debug().Err(err).Str("nickname", nickname).Msg("registration rejected")
		return
	}
	defer s.router.Disconnect(conn.ID())

	s.readLoop(conn)
}

// handshake waits for the mandatory set_nickname frame. Malformed
// frames are answered and skipped; anything else ends the attempt.
func (s *Server) handshake(conn *Conn) (string, error) {
	if s.handshakeTimeout > 0 {
		_ = conn.nc.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
		defer conn.nc.SetReadDeadline(time.Time{})
	}

	for {
		m, err := conn.dec.Decode()
		if errors.Is(err, proto.ErrMalformed) {
			_ = conn.Send(proto.ServerMessage("Invalid message format."))
			continue
		}
		if err != nil {
			return "", err
		}
		if m.Type != proto.TypeSetNickname {
			_ = conn.Send(proto.ErrorMessage("First message must be set_nickname."))
			return "", fmt.Errorf("handshake: got %q", m.Type)
		}
		if m.Nickname == "" {
			_ = conn.Send(proto.ErrorMessage("Nickname cannot be empty."))
			return "", errors.New("handshake: empty nickname")
		}
		return m.Nickname, nil
	}
}

func (s *Server) readLoop(conn *Conn) {
	for {
		m, err := conn.dec.Decode()
		if errors.Is(err, proto.ErrMalformed) {
			s.router.RejectMalformed(conn)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("read failed")
			}
			return
		}
		s.router.Route(conn.ID(), m)
	}
}

func (s *Server) track(conn *Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
