package core

import (
	"github.com/rs/zerolog"

	"github.com/netchat-io/netchat-server/internal/proto"
)

// Router applies business rules: one decoded inbound message plus its
// originating connection id becomes registry mutations and zero or
// more outbound sends. The transports own the sockets; the router only
// ever talks to peers through the registry's handles.
type Router struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewRouter builds a router over the given registry.
func NewRouter(registry *Registry, logger *zerolog.Logger) *Router {
	return &Router{registry: registry, log: logger}
}

// Connect registers a new connection, welcomes it, and announces it to
// the default channel. On error nothing was registered and the caller
// should reject the connection.
func (r *Router) Connect(id, nickname string, peer Peer) error {
	if err := r.registry.Register(id, nickname, peer); err != nil {
		return err
	}

	r.log.Info().Str("conn_id", id).Str("nickname", nickname).Msg("client connected")

	r.send(peer, proto.ServerMessage("Welcome to the chat, "+nickname+"!"))
	r.broadcast(
		r.registry.MembersExcept(DefaultChannel, id),
		proto.ServerMessage(nickname+" has joined the channel."),
	)
	return nil
}

// Disconnect removes a connection and announces its departure to the
// channel it was in. Safe to call more than once.
func (r *Router) Disconnect(id string) {
	nickname, channel, ok := r.registry.Deregister(id)
	if !ok {
		return
	}

	r.log.Info().Str("conn_id", id).Str("nickname", nickname).Msg("client disconnected")

	r.broadcast(
		r.registry.MembersOf(channel),
		proto.ServerMessage(nickname+" has left the chat."),
	)
}

// Route dispatches one inbound message from a registered connection.
func (r *Router) Route(id string, m proto.Message) {
	sender, ok := r.registry.NicknameOf(id)
	if !ok {
		r.log.Warn().Str("conn_id", id).Str("type", m.Type).Msg("message from unregistered connection")
		return
	}

	switch m.Type {
	case proto.TypeChat:
		r.routeChat(id, sender, m)
	case proto.TypePrivate:
		r.routePrivate(id, sender, m)
	case proto.TypeJoinChannel:
		r.routeJoin(id, sender, m)
	case proto.TypeListChannels:
		r.reply(id, proto.ChannelList(r.registry.ChannelNames()))
	case proto.TypeListUsers:
		r.routeListUsers(id, m)
	default:
		r.log.Debug().Str("nickname", sender).Str("type", m.Type).Msg("unknown message type")
		r.reply(id, proto.ErrorMessage("Unknown message type."))
	}
}

// RejectMalformed answers a payload that failed to decode. Registry
// state is untouched and the connection stays open.
func (r *Router) RejectMalformed(peer Peer) {
	r.send(peer, proto.ServerMessage("Invalid message format."))
}

// routeChat broadcasts to every member of the sender's channel, the
// sender included: clients render their own messages from the echo.
func (r *Router) routeChat(id, sender string, m proto.Message) {
	channel, ok := r.registry.ChannelOf(id)
	if !ok {
		return
	}
	r.broadcast(r.registry.MembersOf(channel), proto.ChatMessage(sender, m.Content))
}

func (r *Router) routePrivate(id, sender string, m proto.Message) {
	recipient, found := r.registry.FindByNickname(m.Recipient)
	if !found {
		r.reply(id, proto.ServerMessage("User "+m.Recipient+" not found."))
		return
	}
	r.send(recipient, proto.PrivateMessage(sender, m.Content))
	r.reply(id, proto.PrivateSent(m.Recipient, m.Content))
}

func (r *Router) routeJoin(id, sender string, m proto.Message) {
	previous, err := r.registry.MoveChannel(id, m.Channel)
	if err != nil {
		r.reply(id, proto.ErrorMessage("Channel name cannot be empty."))
		return
	}

	r.log.Info().
		Str("nickname", sender).
		Str("from", previous).
		Str("to", m.Channel).
		Msg("client changed channel")

	r.reply(id, proto.ServerMessage("You have joined the channel: "+m.Channel))
	r.broadcast(
		r.registry.MembersExcept(m.Channel, id),
		proto.ServerMessage(sender+" has joined the channel."),
	)
}

func (r *Router) routeListUsers(id string, m proto.Message) {
	channel := m.Channel
	if channel == "" {
		channel, _ = r.registry.ChannelOf(id)
	}
	r.reply(id, proto.UserList(channel, r.registry.UsersOf(channel)))
}

// reply unicasts back to the originating connection.
func (r *Router) reply(id string, m proto.Message) {
	peer, ok := r.registry.PeerOf(id)
	if !ok {
		return
	}
	r.send(peer, m)
}

func (r *Router) send(peer Peer, m proto.Message) {
	if err := peer.Send(m); err != nil {
		// The failing connection's read loop tears it down; other
		// recipients are unaffected.
		r.log.Debug().Err(err).Str("type", m.Type).Msg("send failed")
	}
}

func (r *Router) broadcast(peers []Peer, m proto.Message) {
	for _, peer := range peers {
		r.send(peer, m)
	}
}
