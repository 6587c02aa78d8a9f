package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultIdempotencyTTL is how long a keyed response is replayed.
const DefaultIdempotencyTTL = 5 * time.Minute

type method struct {
	handler  RequestHandler
	uncapped bool
}

// MethodOption adjusts how a registered method is dispatched.
type MethodOption func(*method)

// Uncapped exempts a method from the session limiter. Use it for control
// calls that other in-flight requests may be waiting on.
func Uncapped() MethodOption {
	return func(m *method) { m.uncapped = true }
}

// RPCRouter dispatches decoded requests to registered handlers. Requests
// carrying an idempotency key get the stored response of an earlier call
// with the same method and key.
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]method
	replay  *replayCache
}

// NewRPCRouter creates an empty router.
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		methods: make(map[string]method),
		replay:  newReplayCache(DefaultIdempotencyTTL),
	}
}

// RegisterMethod adds or replaces the handler for name.
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler, opts ...MethodOption) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	m := method{handler: handler}
	for _, opt := range opts {
		opt(&m)
	}

	r.mu.Lock()
	r.methods[name] = m
	r.mu.Unlock()
	return nil
}

// HasMethod reports whether name is registered.
func (r *RPCRouter) HasMethod(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Uncapped reports whether name was registered with Uncapped.
func (r *RPCRouter) Uncapped(name string) bool {
	m, ok := r.lookup(name)
	return ok && m.uncapped
}

// Methods returns the registered method names, sorted.
func (r *RPCRouter) Methods() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

func (r *RPCRouter) lookup(name string) (method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// ParseRequest decodes one frame. Failures are returned as *RPCError.
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	case req.Method == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	}

	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	return &req, nil
}

// RouteRequest runs the handler for req. A handler error that is an
// *RPCError keeps its code; any other error becomes InternalError.
func (r *RPCRouter) RouteRequest(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req == nil {
		return &RPCResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: InvalidRequest, Message: "invalid request"},
		}
	}

	key := replayKey(req.Method, req.IdempotencyKey)
	if stored, ok := r.replay.get(key); ok {
		stored.ID = req.ID
		return &stored
	}

	m, ok := r.lookup(req.Method)
	if !ok {
		return &RPCResponse{
			ID:      req.ID,
			JSONRPC: "2.0",
			Error:   &RPCError{Code: MethodNotFound, Message: "Method not found: " + req.Method},
		}
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}

	resp := &RPCResponse{ID: req.ID, JSONRPC: "2.0"}
	result, err := m.handler(ctx, params)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &RPCError{Code: InternalError, Message: err.Error()}
		}
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}

	r.replay.put(key, *resp)
	return resp
}

func replayKey(method, idempotencyKey string) string {
	if idempotencyKey == "" {
		return ""
	}
	return method + ":" + idempotencyKey
}

// replayCache holds responses for idempotent retries until they expire.
type replayCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]replayEntry
}

type replayEntry struct {
	response  RPCResponse
	expiresAt time.Time
}

func newReplayCache(ttl time.Duration) *replayCache {
	return &replayCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]replayEntry),
	}
}

func (c *replayCache) get(key string) (RPCResponse, bool) {
	if key == "" {
		return RPCResponse{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return RPCResponse{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return RPCResponse{}, false
	}
	return e.response.clone(), true
}

// put stores resp under key and drops whatever has expired.
func (c *replayCache) put(key string, resp RPCResponse) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = replayEntry{response: resp.clone(), expiresAt: now.Add(c.ttl)}
}

func (r RPCResponse) clone() RPCResponse {
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	return r
}
