// Package mirror relays commands from the primary to a mirror node over a
// short-lived connection per command.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"w24fs/internal/logger"
	"w24fs/internal/metrics"
	"w24fs/internal/protocol"
	"w24fs/internal/types"
)

var (
	ErrMirrorUnavailable = errors.New("mirror unavailable")
	ErrUnknownTarget     = errors.New("unknown mirror target")
)

// Proxy forwards commands to the configured mirrors.
type Proxy struct {
	Targets     map[types.RouteDecision]string
	DialTimeout time.Duration
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewProxy(mirror1, mirror2 string, dialTimeout time.Duration) *Proxy {
	d := &net.Dialer{Timeout: dialTimeout}
	return &Proxy{
		Targets: map[types.RouteDecision]string{
			types.RouteMirror1: mirror1,
			types.RouteMirror2: mirror2,
		},
		DialTimeout: dialTimeout,
		dial:        d.DialContext,
	}
}

// FailureMessage is the response sent when relaying to target fails.
func FailureMessage(target types.RouteDecision) string {
	return fmt.Sprintf("Error forwarding request to %s", target)
}

// Forward sends cmd to target and copies the mirror's response frames to w
// as they arrive. It returns how many frames reached w. The outbound
// connection is always closed before returning.
func (p *Proxy) Forward(ctx context.Context, target types.RouteDecision, cmd types.Command, w io.Writer) (relayed int, err error) {
	defer func() { metrics.RecordForward(target.String(), err) }()

	addr, ok := p.Targets[target]
	if !ok || addr == "" {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}

	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("%w: dial %s: %v", ErrMirrorUnavailable, addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := protocol.WriteString(conn, cmd.Raw); err != nil {
		return 0, fmt.Errorf("%w: send to %s: %v", ErrMirrorUnavailable, addr, err)
	}

	want := protocol.ResponseFrames(cmd)
	for relayed < want {
		frame, err := protocol.ReadFrame(conn, protocol.MaxResponseSize)
		if err != nil {
			return relayed, fmt.Errorf("%w: receive from %s: %v", ErrMirrorUnavailable, addr, err)
		}
		if err := protocol.WriteFrame(w, frame); err != nil {
			// the client went away; nothing left to report to
			return relayed, fmt.Errorf("relay to client: %w", err)
		}
		relayed++
	}
	logger.Debug("Forwarded %q to %s (%s), %d frames", cmd.Raw, target, addr, relayed)
	return relayed, nil
}
