package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netchat-io/netchat-server/internal/proto"
)

const helpText = `Chat commands:
  /msg <user> <message>  send a private message
  /join <channel>        join a channel
  /channels              list available channels
  /users [channel]       list users in a channel
  /quit                  disconnect and exit
  /help                  show this help message
  anything else is sent to the current channel`

type client struct {
	conn    net.Conn
	dec     *proto.Decoder
	channel string
}

func main() {
	var (
		server   string
		nickname string
	)

	rootCmd := &cobra.Command{
		Use:   "netchat",
		Short: "Interactive TCP chat client",
		RunE: func(_ *cobra.Command, _ []string) error {
			if nickname == "" {
				return errors.New("nickname is required")
			}
			return run(server, nickname)
		},
	}

	rootCmd.Flags().StringVar(&server, "server", "localhost:9000", "server host:port")
	rootCmd.Flags().StringVar(&nickname, "nickname", "", "nickname to chat under")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(server, nickname string) error {
	conn, err := net.Dial("tcp", server)
	if err != nil {
		return fmt.Errorf("connect %s: %w", server, err)
	}
	defer conn.Close()

	c := &client{
		conn:    conn,
		dec:     proto.NewDecoder(conn),
		channel: "general",
	}

	if err := c.send(proto.Message{Type: proto.TypeSetNickname, Nickname: nickname}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", server, nickname)
	fmt.Println(helpText)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.receiveLoop()
	}()

	c.inputLoop()
	conn.Close()
	<-done
	return nil
}

func (c *client) send(m proto.Message) error {
	_, err := c.conn.Write(proto.Encode(m))
	return err
}

func (c *client) receiveLoop() {
	for {
		m, err := c.dec.Decode()
		if errors.Is(err, proto.ErrMalformed) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				fmt.Fprintln(os.Stderr, "connection lost:", err)
			}
			return
		}
		c.print(m)
	}
}

func (c *client) print(m proto.Message) {
	switch m.Type {
	case proto.TypeChat:
		fmt.Printf("[%s] %s: %s\n", c.channel, m.Sender, m.Content)
	case proto.TypePrivate:
		fmt.Printf("[private from %s]: %s\n", m.Sender, m.Content)
	case proto.TypePrivateSent:
		fmt.Printf("[private to %s]: %s\n", m.Recipient, m.Content)
	case proto.TypeServerMessage:
		fmt.Printf("[server] %s\n", m.Content)
	case proto.TypeChannelList:
		fmt.Println("Available channels:")
		for _, channel := range m.Channels {
			fmt.Printf("- %s\n", channel)
		}
	case proto.TypeUserList:
		fmt.Printf("Users in %s:\n", m.Channel)
		for _, user := range m.Users {
			fmt.Printf("- %s\n", user)
		}
	case proto.TypeError:
		fmt.Printf("[error] %s\n", m.Content)
	}
}

func (c *client) inputLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := c.send(proto.Message{Type: proto.TypeChat, Content: line}); err != nil {
				return
			}
			continue
		}
		if quit := c.command(line); quit {
			return
		}
	}
}

// command handles one slash command; returns true on /quit.
func (c *client) command(line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit":
		return true
	case "/help":
		fmt.Println(helpText)
	case "/msg":
		recipient, content, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(content) == "" {
			fmt.Println("usage: /msg <user> <message>")
			return false
		}
		_ = c.send(proto.Message{Type: proto.TypePrivate, Recipient: recipient, Content: strings.TrimSpace(content)})
	case "/join":
		if rest == "" {
			fmt.Println("usage: /join <channel>")
			return false
		}
		if err := c.send(proto.Message{Type: proto.TypeJoinChannel, Channel: rest}); err == nil {
			c.channel = rest
		}
	case "/channels":
		_ = c.send(proto.Message{Type: proto.TypeListChannels})
	case "/users":
		_ = c.send(proto.Message{Type: proto.TypeListUsers, Channel: rest})
	default:
		fmt.Println("unknown command; /help for a list")
	}
	return false
}
