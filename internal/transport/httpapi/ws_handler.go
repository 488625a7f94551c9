package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/netchat-io/netchat-server/internal/core"
	"github.com/netchat-io/netchat-server/internal/proto"
	"github.com/netchat-io/netchat-server/internal/utils"
)

// WSHandler upgrades HTTP connections and speaks the chat protocol
// over WebSocket frames: one JSON message per text frame, the same
// handshake and routing semantics as the TCP transport.
type WSHandler struct {
	router           *core.Router
	handshakeTimeout time.Duration
	log              *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(router *core.Router, handshakeTimeout time.Duration, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{router: router, handshakeTimeout: handshakeTimeout, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	peer := &wsPeer{conn: conn}

	nickname, err := h.handshake(ctx, peer)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake failed")
		return
	}

	id := utils.NewID()
	if err := h.router.Connect(id, nickname, peer); err != nil {
		if errors.Is(err, core.ErrNicknameTaken) {
			_ = peer.Send(proto.ErrorMessage("Nickname already in use."))
		}
		conn.Close(websocket.StatusPolicyViolation, "registration rejected")
		return
	}
	defer h.router.Disconnect(id)

	h.readLoop(ctx, id, peer)
	conn.Close(websocket.StatusNormalClosure, "closing")
}

func (h *WSHandler) handshake(ctx context.Context, peer *wsPeer) (string, error) {
	if h.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.handshakeTimeout)
		defer cancel()
	}

	for {
		m, err := peer.read(ctx)
		if errors.Is(err, proto.ErrMalformed) {
			_ = peer.Send(proto.ServerMessage("Invalid message format."))
			continue
		}
		if err != nil {
			return "", err
		}
		if m.Type != proto.TypeSetNickname {
			_ = peer.Send(proto.ErrorMessage("First message must be set_nickname."))
			return "", fmt.Errorf("handshake: got %q", m.Type)
		}
		if m.Nickname == "" {
			_ = peer.Send(proto.ErrorMessage("Nickname cannot be empty."))
			return "", errors.New("handshake: empty nickname")
		}
		return m.Nickname, nil
	}
}

func (h *WSHandler) readLoop(ctx context.Context, id string, peer *wsPeer) {
	for {
		m, err := peer.read(ctx)
		if errors.Is(err, proto.ErrMalformed) {
			h.router.RejectMalformed(peer)
			continue
		}
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.log.Debug().Err(err).Str("conn_id", id).Msg("ws read failed")
			}
			return
		}
		h.router.Route(id, m)
	}
}

// wsPeer adapts one WebSocket connection to core.Peer. The write mutex
// serializes concurrent broadcast senders onto the connection.
type wsPeer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (p *wsPeer) Send(m proto.Message) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.conn.Write(ctx, websocket.MessageText, mustMarshal(m))
}

func (p *wsPeer) read(ctx context.Context) (proto.Message, error) {
	_, data, err := p.conn.Read(ctx)
	if err != nil {
		return proto.Message{}, err
	}
	var m proto.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return proto.Message{}, fmt.Errorf("%w: %v", proto.ErrMalformed, err)
	}
	return m, nil
}

func mustMarshal(m proto.Message) []byte {
	b, _ := json.Marshal(m)
	return b
}
