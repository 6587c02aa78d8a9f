package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/opsframe/internal/tracing"
	"github.com/harun/opsframe/pkg/bus"
	"github.com/rs/zerolog"
)

// MaxFrameSize bounds one request line.
const MaxFrameSize = 1024 * 1024

// Config configures a Server.
type Config struct {
	Backend Backend
	// Bus, when set, has its approval requests forwarded to the client as
	// events and receives the client's answers.
	Bus               *bus.Bus
	RequestsPerMinute int
	MaxConcurrent     int
	Logger            zerolog.Logger
}

// Server speaks line-delimited JSON-RPC 2.0 over a reader and a writer,
// typically stdin and stdout. Requests are handled concurrently, so a call
// blocked on an approval does not stop the client from answering it.
type Server struct {
	backend Backend
	bus     *bus.Bus
	router  *RPCRouter
	limiter *Limiter
	logger  zerolog.Logger

	writeMu sync.Mutex
	out     *json.Encoder
	seq     atomic.Int64

	inFlight    sync.WaitGroup
	unsubscribe func()
}

// NewServer creates a server and registers the built-in methods.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("gateway backend is required")
	}

	s := &Server{
		backend: cfg.Backend,
		bus:     cfg.Bus,
		router:  NewRPCRouter(),
		limiter: NewLimiter(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		logger:  cfg.Logger.With().Str("component", "gateway").Logger(),
	}
	s.registerBuiltinMethods()
	if s.bus != nil {
		s.forwardApprovals()
	}
	return s, nil
}

// Serve reads requests from in until EOF or ctx is done, writing responses
// and events to out. After EOF it waits for in-flight requests.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.writeMu.Lock()
	s.out = json.NewEncoder(out)
	s.writeMu.Unlock()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.logger.Info().Strs("methods", s.router.Methods()).Msg("Gateway serving")

	for {
		select {
		case <-ctx.Done():
			s.inFlight.Wait()
			return ctx.Err()
		case line := <-lines:
			s.handleFrame(ctx, line)
		case err := <-readErr:
			s.inFlight.Wait()
			if err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}
			s.logger.Info().Msg("Gateway input closed")
			return nil
		}
	}
}

// Close stops forwarding approval requests.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Server) handleFrame(ctx context.Context, frame []byte) {
	if len(bytes.TrimSpace(frame)) == 0 {
		return
	}

	req, err := s.router.ParseRequest(frame)
	if err != nil {
		rpcErr, ok := err.(*RPCError)
		if !ok {
			rpcErr = &RPCError{Code: ParseError, Message: err.Error()}
		}
		s.write(RPCResponse{JSONRPC: "2.0", Error: rpcErr})
		return
	}

	limited := !s.router.Uncapped(req.Method)
	if limited {
		if rpcErr := s.limiter.Acquire(); rpcErr != nil {
			s.write(RPCResponse{ID: req.ID, JSONRPC: "2.0", Error: rpcErr})
			return
		}
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		if limited {
			defer s.limiter.Release()
		}

		reqCtx := tracing.NewRequestContext(ctx)
		logger := tracing.LoggerFromContext(reqCtx, s.logger)
		start := time.Now()

		resp := s.router.RouteRequest(reqCtx, req)

		logger.Debug().
			Str("request_id", req.ID).
			Str("method", req.Method).
			Bool("error", resp.Error != nil).
			Dur("duration", time.Since(start)).
			Msg("Gateway handled request")
		s.write(*resp)
	}()
}

// Emit sends a server-initiated event to the client.
func (s *Server) Emit(event string, data any) {
	s.write(EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       s.seq.Add(1),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) write(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.out == nil {
		return
	}
	if err := s.out.Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write gateway frame")
	}
}
