package publisher

import (
	"context"
	"sync"

	"github.com/paystream-au/railcore/services/orchestrator-service/internal/event"
)

// Memory records published events in order. It backs tests and broker-less
// local runs; a configurable failure lets tests exercise publish errors.
type Memory struct {
	mu      sync.Mutex
	events  []*event.Envelope
	failErr error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (p *Memory) Publish(ctx context.Context, env *event.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	p.events = append(p.events, env)
	return nil
}

// FailWith makes every subsequent Publish return err; nil restores normal
// operation.
func (p *Memory) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// Events returns the published envelopes in emission order.
func (p *Memory) Events() []*event.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*event.Envelope, len(p.events))
	copy(out, p.events)
	return out
}

// Last returns the most recently published envelope, or nil.
func (p *Memory) Last() *event.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}
