// Package remote runs programs on behalf of remote clients over QUIC. Each
// request travels on its own bidirectional stream: one request frame from
// the client, one response frame back.
package remote

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	perrors "pcode/pkg/errors"
	"pcode/pkg/image"
	"pcode/pkg/imagestore"
	"pcode/pkg/vm"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

const (
	// MaxOutput caps the standard output captured for one run.
	MaxOutput = 256 << 10
	// DefaultTimeout bounds a run when the server is not configured
	// otherwise.
	DefaultTimeout = 10 * time.Second
	// ProgramCacheSize is the number of decoded programs a server keeps.
	ProgramCacheSize = 64
)

// Prepare adjusts an image before it runs, for example to apply configured
// sizing overrides.
type Prepare func(*image.Image) *image.Image

// Server runs submitted programs. Every run is sandboxed: programs see
// their standard streams but no host files or environment.
type Server struct {
	Store   *imagestore.Store // nil rejects named requests
	Options vm.Options        // Stdin, Stdout and Sandbox are replaced per request
	Prepare Prepare
	Timeout time.Duration // per run; NewServer sets DefaultTimeout

	// Clients lists the keys allowed to connect. Nil admits any key.
	Clients []ed25519.PublicKey

	key        ed25519.PublicKey
	tlsConfig  *tls.Config
	quicConfig *quic.Config
	listener   *quic.Listener
	programs   *vm.ProgramCache
	wg         sync.WaitGroup
}

func NewServer(key ed25519.PrivateKey) (*Server, error) {
	s := &Server{
		Timeout:    DefaultTimeout,
		key:        key.Public().(ed25519.PublicKey),
		quicConfig: newQUICConfig(),
		programs:   vm.NewProgramCache(ProgramCacheSize),
	}
	tlsConfig, err := serverTLSConfig(key, s.admit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate TLS certificate: %w", err)
	}
	s.tlsConfig = tlsConfig
	return s, nil
}

// admit is consulted during each handshake.
func (s *Server) admit(pub ed25519.PublicKey) error {
	if s.Clients == nil {
		return nil
	}
	for _, k := range s.Clients {
		if pub.Equal(k) {
			return nil
		}
	}
	return fmt.Errorf("client %s is not allowed", NodeName(pub))
}

func newQUICConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: 10 * time.Second,
		MaxIdleTimeout:       30 * time.Second,
		KeepAlivePeriod:      15 * time.Second,
	}
}

// PublicKey identifies the server to clients.
func (s *Server) PublicKey() ed25519.PublicKey {
	return s.key
}

// Listen binds the UDP address. Serve must follow.
func (s *Server) Listen(addr string) error {
	listener, err := quic.ListenAddr(addr, s.tlsConfig, s.quicConfig)
	if err != nil {
		return fmt.Errorf("failed to create QUIC listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Addr is the bound address; valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then waits for the
// requests in flight.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	log.Printf("Listening on %s", s.listener.Addr())
	defer s.wg.Wait()
	defer s.listener.Close()

	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn *quic.Conn) {
	peer := conn.RemoteAddr()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.CloseWithError(0, "shutting down")
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveStream(ctx, peer, stream)
		}()
	}
}

func (s *Server) serveStream(ctx context.Context, peer net.Addr, stream *quic.Stream) {
	defer stream.Close()
	id := uuid.NewString()

	var resp *Response
	body, err := readFrame(stream)
	if err == nil {
		var req *Request
		if req, err = decodeRequest(body); err == nil {
			start := time.Now()
			resp = s.Execute(ctx, req)
			log.Printf("[%s] %s from %s: %s in %v", id, req, peer, resp, time.Since(start))
		}
	}
	if err != nil {
		if perrors.IsProtocolError(err) {
			log.Printf("[%s] Malformed request from %s: %v", id, peer, err)
			resp = &Response{Error: err.Error()}
		} else {
			log.Printf("[%s] Reading request from %s: %v", id, peer, err)
			stream.CancelRead(0)
			return
		}
	}
	if err := writeFrame(stream, encodeResponse(resp)); err != nil {
		log.Printf("[%s] Writing response to %s: %v", id, peer, err)
	}
}

// Execute runs req in a fresh machine.
func (s *Server) Execute(ctx context.Context, req *Request) *Response {
	img := req.Image
	if req.Name != "" {
		if s.Store == nil {
			return &Response{Error: "server has no image store"}
		}
		var err error
		if img, err = s.Store.Get(req.Name); err != nil {
			return &Response{Error: err.Error()}
		}
	}
	if s.Prepare != nil {
		img = s.Prepare(img)
	}

	var stdout bytes.Buffer
	opts := s.Options
	opts.Stdin = bytes.NewReader(req.Stdin)
	opts.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutput}
	opts.Sandbox = true
	if opts.Programs == nil {
		opts.Programs = s.programs
	}
	m, err := vm.New(img, opts)
	if err != nil {
		return &Response{Error: err.Error()}
	}
	defer m.Close()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	reason, err := m.RunContext(ctx)
	if err != nil {
		return &Response{Error: fmt.Sprintf("run stopped at pc=%d: %v", m.PC, err), PC: m.PC, Line: m.Line}
	}
	return &Response{
		Reason:   reason,
		ExitCode: m.ExitCode,
		PC:       m.PC,
		Line:     m.Line,
		Stdout:   stdout.Bytes(),
	}
}

var errOutputLimit = errors.New("output limit reached")

// limitedWriter keeps the first limit bytes and fails every write after.
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if len(p) > room {
		w.buf.Write(p[:max(room, 0)])
		return max(room, 0), errOutputLimit
	}
	return w.buf.Write(p)
}
