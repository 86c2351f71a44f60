package events

import "context"

// Publisher delivers envelopes after the state they describe has been
// committed. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Envelope) error { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	ch chan Envelope
}

func NewRecorder(buf int) *Recorder { return &Recorder{ch: make(chan Envelope, buf)} }

func (r *Recorder) Publish(_ context.Context, env Envelope) error {
	select {
	case r.ch <- env:
	default:
	}
	return nil
}

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-r.ch:
			out = append(out, env)
		default:
			return out
		}
	}
}
