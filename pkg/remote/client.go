package remote

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/quic-go/quic-go"
)

// Client holds one QUIC connection to an execution server. Execute may be
// called concurrently; each call uses its own stream.
type Client struct {
	conn *quic.Conn
}

// Dial connects to addr. When server is non-nil the server must present that
// key.
func Dial(ctx context.Context, addr string, key ed25519.PrivateKey, server ed25519.PublicKey) (*Client, error) {
	tlsConfig, err := clientTLSConfig(key, server)
	if err != nil {
		return nil, fmt.Errorf("failed to generate TLS certificate: %w", err)
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, newQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.CloseWithError(0, "client closed")
}

// Execute sends req and waits for the server's response. A program fault is
// reported in the response, not as an error.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}

	if err := writeFrame(stream, body); err != nil {
		stream.CancelRead(0)
		return nil, err
	}
	// half-close: the server reads exactly one frame
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("failed to close request side: %w", err)
	}

	reply, err := readFrame(stream)
	if err != nil {
		return nil, err
	}
	return decodeResponse(reply)
}
