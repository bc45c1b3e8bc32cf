package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrInvalidMethod   = errors.New("server: invalid method registration")
	ErrDuplicateMethod = errors.New("server: method already registered")
	ErrMethodNotFound  = errors.New("server: method not found")
)

// Handler serves one request payload. The context is scoped to the owning
// connection and is canceled when it tears down.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Registry maps service/method pairs to handlers. Safe for concurrent use;
// connections share one registry for the life of the server.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]Handler),
	}
}

func (r *Registry) Register(service, method string, h Handler) error {
	service = strings.TrimSpace(service)
	method = strings.TrimSpace(method)
	if service == "" || method == "" || h == nil {
		return fmt.Errorf("%w: service=%q method=%q", ErrInvalidMethod, service, method)
	}
	key := methodKey(service, method)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, key)
	}
	r.methods[key] = h
	return nil
}

func (r *Registry) Lookup(service, method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.methods[methodKey(service, method)]
	return h, ok
}

func methodKey(service, method string) string {
	return service + "/" + method
}
