// Package client speaks the node protocol from the client side.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"w24fs/internal/protocol"
	"w24fs/internal/types"
)

var ErrInvalidCommand = errors.New("invalid command")

// Client holds one connection to a node. It is not safe for concurrent use.
type Client struct {
	conn net.Conn
}

// Dial connects to the node at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Validate rejects lines whose verb the node would not recognise, so they
// are never sent.
func Validate(line string) (types.Command, error) {
	cmd := protocol.Parse(line)
	if cmd.Op == types.OpInvalid {
		return cmd, fmt.Errorf("%w: %q", ErrInvalidCommand, line)
	}
	return cmd, nil
}

// Do sends one command and returns every response frame. quitc returns no
// frames.
func (c *Client) Do(line string) ([]string, error) {
	cmd := protocol.Parse(line)
	if err := protocol.WriteString(c.conn, cmd.Raw); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	want := protocol.ResponseFrames(cmd)
	frames := make([]string, 0, want)
	for len(frames) < want {
		f, err := protocol.ReadFrame(c.conn, protocol.MaxResponseSize)
		if err != nil {
			return frames, fmt.Errorf("receive: %w", err)
		}
		frames = append(frames, string(f))
	}
	return frames, nil
}

// Close sends quitc and closes the connection.
func (c *Client) Close() error {
	_ = protocol.WriteString(c.conn, types.OpQuit.String())
	return c.conn.Close()
}
