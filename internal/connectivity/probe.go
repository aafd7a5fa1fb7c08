// Package connectivity abstracts the platform connectivity signal: a
// point-in-time online check plus a push-style stream of transitions.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Status is the connectivity state reported by a probe.
type Status string

const (
	// StatusAvailable means the network is reachable
	StatusAvailable Status = "Available"

	// StatusUnavailable means the network is not reachable
	StatusUnavailable Status = "Unavailable"
)

// Probe exposes the connectivity signal consumed by the sync engine.
type Probe interface {
	// Online reports whether the network is currently reachable.
	Online(ctx context.Context) bool

	// Watch emits a Status whenever connectivity transitions. The channel
	// closes when ctx is cancelled.
	Watch(ctx context.Context) <-chan Status
}

const (
	// probeInterval is how often the dial probe re-checks connectivity.
	probeInterval = 15 * time.Second

	// probeDialTimeout bounds a single reachability dial.
	probeDialTimeout = 5 * time.Second
)

// DialProbe checks reachability by dialing a well-known TCP endpoint.
type DialProbe struct {
	address string
	dialer  *net.Dialer
	logger  *slog.Logger
}

// NewDialProbe creates a probe against the given host:port. An empty address
// defaults to the backend-independent "1.1.1.1:443".
func NewDialProbe(address string, logger *slog.Logger) *DialProbe {
	if address == "" {
		address = "1.1.1.1:443"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DialProbe{
		address: address,
		dialer:  &net.Dialer{Timeout: probeDialTimeout},
		logger:  logger,
	}
}

// Online implements Probe.
func (p *DialProbe) Online(ctx context.Context) bool {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Watch implements Probe. Transitions are emitted only when the observed
// state changes, so consumers do not need to debounce.
func (p *DialProbe) Watch(ctx context.Context) <-chan Status {
	out := make(chan Status, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()

		last := p.status(ctx)
		out <- last

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current := p.status(ctx)
				if current == last {
					continue
				}
				p.logger.Info("Connectivity changed", "status", string(current))
				last = current
				select {
				case out <- current:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (p *DialProbe) status(ctx context.Context) Status {
	if p.Online(ctx) {
		return StatusAvailable
	}
	return StatusUnavailable
}

// StaticProbe always reports a fixed state. Used by tests.
type StaticProbe struct {
	IsOnline bool
}

// Online implements Probe.
func (p *StaticProbe) Online(context.Context) bool {
	return p.IsOnline
}

// Watch implements Probe.
func (p *StaticProbe) Watch(ctx context.Context) <-chan Status {
	out := make(chan Status, 1)
	if p.IsOnline {
		out <- StatusAvailable
	} else {
		out <- StatusUnavailable
	}
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}
