package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"payment-engine/internal/models"
)

// Registry resolves adapters by name. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("gateway %q is not registered: %w", name, models.ErrInvalidInput)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Options struct {
	Enabled        []string
	SandboxEnabled bool
	SandboxSecret  string
	CallbackURL    string
	Client         *http.Client
}

// Build wires the adapters listed in opts.Enabled.
func Build(opts Options, creds CredentialSource) (*Registry, error) {
	r := NewRegistry()
	for _, name := range opts.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
			continue
		case PaystackName:
			r.Register(NewPaystack(creds, opts.Client, opts.CallbackURL))
		case FlutterwaveName:
			r.Register(NewFlutterwave(creds, opts.Client, opts.CallbackURL))
		case KorapayName:
			r.Register(NewKorapay(creds, opts.Client, opts.CallbackURL))
		case SandboxName:
			r.Register(NewSandbox(opts.SandboxSecret))
		default:
			return nil, fmt.Errorf("Build: unknown gateway %q", name)
		}
	}
	if opts.SandboxEnabled {
		r.Register(NewSandbox(opts.SandboxSecret))
	}
	return r, nil
}
