// Package engine runs conversation turns against vendor adapters: it builds
// the context window, drives the retried streaming request, decodes events,
// loops over tool calls and threads the monadic context between turns.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/stream"
)

// Vendor adapts one backend's wire format. Implementations must be safe for
// concurrent use; per-pass state lives in the Translator.
type Vendor interface {
	// Name is the registry key.
	Name() string
	// NewRequest serializes the window and parameters into an HTTP request.
	NewRequest(ctx context.Context, req *aisdk.Request) (*http.Request, error)
	// Framing finds unit boundaries in the response body.
	Framing() stream.Framing
	// NewTranslator returns a fresh translator for one decode pass.
	NewTranslator() stream.Translator
}

// ErrorDecoder is implemented by vendors that understand their own error
// bodies. The returned error should be an *aisdk.APIError.
type ErrorDecoder interface {
	DecodeError(resp *http.Response) error
}

// Registry maps vendor names to adapters.
type Registry struct {
	mu      sync.RWMutex
	vendors map[string]Vendor
}

// NewRegistry creates a registry holding vendors.
func NewRegistry(vendors ...Vendor) (*Registry, error) {
	r := &Registry{vendors: make(map[string]Vendor)}
	for _, v := range vendors {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a vendor. Names must be unique.
func (r *Registry) Register(v Vendor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.Name() == "" {
		return fmt.Errorf("vendor name cannot be empty")
	}
	if _, ok := r.vendors[v.Name()]; ok {
		return fmt.Errorf("vendor %s is already registered", v.Name())
	}
	r.vendors[v.Name()] = v
	return nil
}

// Lookup returns the vendor registered under name.
func (r *Registry) Lookup(name string) (Vendor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vendors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", aisdk.ErrUnknownVendor, name)
	}
	return v, nil
}

// Names returns the registered vendor names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.vendors))
	for name := range r.vendors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
