package proto

// Message types sent by the client.
const (
	TypeSetNickname  = "set_nickname"
	TypeChat         = "chat"
	TypePrivate      = "private"
	TypeJoinChannel  = "join_channel"
	TypeListChannels = "list_channels"
	TypeListUsers    = "list_users"
)

// Message types sent by the server. TypeChat is used in both directions.
const (
	TypeServerMessage = "server_message"
	TypePrivateSent   = "private_sent"
	TypeChannelList   = "channel_list"
	TypeUserList      = "user_list"
	TypeError         = "error"
)

// Message is one wire-level payload: a type tag plus the fields that
// tag uses. Unused fields are omitted on the wire.
type Message struct {
	Type      string   `json:"type"`
	Nickname  string   `json:"nickname,omitempty"`
	Sender    string   `json:"sender,omitempty"`
	Recipient string   `json:"recipient,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Content   string   `json:"content,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	Users     []string `json:"users,omitempty"`
}

// ServerMessage builds a server-originated notice.
func ServerMessage(content string) Message {
	return Message{Type: TypeServerMessage, Content: content}
}

// ErrorMessage builds an error reply.
func ErrorMessage(content string) Message {
	return Message{Type: TypeError, Content: content}
}

// ChatMessage builds an outbound channel broadcast.
func ChatMessage(sender, content string) Message {
	return Message{Type: TypeChat, Sender: sender, Content: content}
}

// PrivateMessage builds the copy delivered to the recipient.
func PrivateMessage(sender, content string) Message {
	return Message{Type: TypePrivate, Sender: sender, Content: content}
}

// PrivateSent builds the confirmation delivered back to the sender.
func PrivateSent(recipient, content string) Message {
	return Message{Type: TypePrivateSent, Recipient: recipient, Content: content}
}

// ChannelList builds the reply to list_channels.
func ChannelList(channels []string) Message {
	return Message{Type: TypeChannelList, Channels: channels}
}

// UserList builds the reply to list_users.
func UserList(channel string, users []string) Message {
	return Message{Type: TypeUserList, Channel: channel, Users: users}
}
