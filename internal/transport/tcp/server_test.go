package tcp

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/netchat-io/netchat-server/internal/core"
	"github.com/netchat-io/netchat-server/internal/proto"
)

func startServer(t *testing.T) string {
	t.Helper()

	logger := zerolog.Nop()
	registry := core.NewRegistry()
	router := core.NewRouter(registry, &logger)
	srv := NewServer("127.0.0.1:0", 2*time.Second, router, &logger)

	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv.Addr().String()
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	dec  *proto.Decoder
}

func dialRaw(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, dec: proto.NewDecoder(conn)}
}

// dial connects and completes the set_nickname handshake.
func dial(t *testing.T, addr, nickname string) *testClient {
	t.Helper()
	c := dialRaw(t, addr)
	c.send(proto.Message{Type: proto.TypeSetNickname, Nickname: nickname})

	welcome := c.expect(proto.TypeServerMessage)
	if !strings.HasPrefix(welcome.Content, "Welcome to the chat, "+nickname) {
		t.Fatalf("welcome = %q", welcome.Content)
	}
	return c
}

func (c *testClient) send(m proto.Message) {
	c.t.Helper()
	if _, err := c.conn.Write(proto.Encode(m)); err != nil {
		c.t.Fatalf("send: %v", err)
	}
}

func (c *testClient) sendRaw(payload string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(payload)); err != nil {
		c.t.Fatalf("send raw: %v", err)
	}
}

// expect reads frames until one of the wanted type arrives. Unrelated
// notices (joins, leaves) are skipped.
func (c *testClient) expect(typ string) proto.Message {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		m, err := c.dec.Decode()
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", typ, err)
		}
		if m.Type == typ {
			return m
		}
	}
}

// expectClosed waits for the server to drop the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, err := c.dec.Decode(); err != nil {
			return
		}
	}
}

func TestEndToEndScenario(t *testing.T) {
	addr := startServer(t)

	alice := dial(t, addr, "alice")
	bob := dial(t, addr, "bob")

	// Alice sees bob's arrival in general.
	if m := alice.expect(proto.TypeServerMessage); !strings.Contains(m.Content, "bob has joined") {
		t.Fatalf("join notice = %q", m.Content)
	}

	alice.send(proto.Message{Type: proto.TypeChat, Content: "hi"})
	if m := bob.expect(proto.TypeChat); m.Sender != "alice" || m.Content != "hi" {
		t.Fatalf("bob got %+v", m)
	}
	// Broadcast policy: the sender receives its own message too.
	if m := alice.expect(proto.TypeChat); m.Sender != "alice" {
		t.Fatalf("alice's echo = %+v", m)
	}

	bob.send(proto.Message{Type: proto.TypeJoinChannel, Channel: "dev"})
	if m := bob.expect(proto.TypeServerMessage); m.Content != "You have joined the channel: dev" {
		t.Fatalf("join confirmation = %q", m.Content)
	}

	alice.send(proto.Message{Type: proto.TypePrivate, Recipient: "bob", Content: "hey"})
	if m := bob.expect(proto.TypePrivate); m.Sender != "alice" || m.Content != "hey" {
		t.Fatalf("bob's private = %+v", m)
	}
	if m := alice.expect(proto.TypePrivateSent); m.Recipient != "bob" || m.Content != "hey" {
		t.Fatalf("alice's confirmation = %+v", m)
	}

	alice.send(proto.Message{Type: proto.TypeListChannels})
	list := alice.expect(proto.TypeChannelList)
	if len(list.Channels) != 2 || list.Channels[0] != "dev" || list.Channels[1] != "general" {
		t.Fatalf("channels = %v", list.Channels)
	}

	alice.send(proto.Message{Type: proto.TypeListUsers, Channel: "dev"})
	users := alice.expect(proto.TypeUserList)
	if len(users.Users) != 1 || users.Users[0] != "bob" {
		t.Fatalf("dev users = %v", users.Users)
	}
}

func TestNicknameConflictRejected(t *testing.T) {
	addr := startServer(t)

	dial(t, addr, "alice")

	intruder := dialRaw(t, addr)
	intruder.send(proto.Message{Type: proto.TypeSetNickname, Nickname: "alice"})
	if m := intruder.expect(proto.TypeError); m.Content != "Nickname already in use." {
		t.Fatalf("rejection = %q", m.Content)
	}
	intruder.expectClosed()
}

func TestHandshakeRequiresSetNickname(t *testing.T) {
	addr := startServer(t)

	c := dialRaw(t, addr)
	c.send(proto.Message{Type: proto.TypeChat, Content: "too eager"})
	if m := c.expect(proto.TypeError); !strings.Contains(m.Content, "set_nickname") {
		t.Fatalf("rejection = %q", m.Content)
	}
	c.expectClosed()
}

func TestMalformedPayloadKeepsConnectionAlive(t *testing.T) {
	addr := startServer(t)

	alice := dial(t, addr, "alice")
	alice.sendRaw("this is not json\n")
	if m := alice.expect(proto.TypeServerMessage); m.Content != "Invalid message format." {
		t.Fatalf("reply = %q", m.Content)
	}

	// Still registered and fully functional afterwards.
	alice.send(proto.Message{Type: proto.TypeListUsers})
	users := alice.expect(proto.TypeUserList)
	if len(users.Users) != 1 || users.Users[0] != "alice" {
		t.Fatalf("users after malformed frame = %v", users.Users)
	}
}

func TestCoalescedFramesOverWire(t *testing.T) {
	addr := startServer(t)

	alice := dial(t, addr, "alice")
	bob := dial(t, addr, "bob")

	// Two frames in one write: the server must split them.
	payload := string(proto.Encode(proto.Message{Type: proto.TypeChat, Content: "one"})) +
		string(proto.Encode(proto.Message{Type: proto.TypeChat, Content: "two"}))
	alice.sendRaw(payload)

	if m := bob.expect(proto.TypeChat); m.Content != "one" {
		t.Fatalf("first frame = %+v", m)
	}
	if m := bob.expect(proto.TypeChat); m.Content != "two" {
		t.Fatalf("second frame = %+v", m)
	}
}

func TestDisconnectAnnouncement(t *testing.T) {
	addr := startServer(t)

	alice := dial(t, addr, "alice")
	bob := dial(t, addr, "bob")
	alice.expect(proto.TypeServerMessage) // bob's join notice

	bob.conn.Close()

	if m := alice.expect(proto.TypeServerMessage); !strings.Contains(m.Content, "bob has left") {
		t.Fatalf("leave notice = %q", m.Content)
	}
}
