package health

import (
	"context"
	"time"
)

// Pinger is anything the API depends on that can report reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Service encapsulates health-related checks.
type Service struct {
	deps    map[string]Pinger
	timeout time.Duration
}

// NewService constructs a health service over the named dependencies. Nil
// dependencies are skipped.
func NewService(deps map[string]Pinger) *Service {
	s := &Service{deps: map[string]Pinger{}, timeout: 2 * time.Second}
	for name, p := range deps {
		if p != nil {
			s.deps[name] = p
		}
	}
	return s
}

// Status reports liveness plus one entry per dependency. ok is false when any
// dependency failed its ping.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	out := map[string]any{"ok": true}
	healthy := true
	for name, p := range s.deps {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := p.PingContext(pctx)
		cancel()
		if err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	out["ok"] = healthy
	return out, healthy
}
