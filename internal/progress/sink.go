package progress

import "context"

// Sink receives flushed batches from a Hub. Consume is called from the hub's
// goroutine with a per-sink deadline; Close runs once when the hub stops.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is what the crawler and the orchestrator report into.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc lets a plain function receive events, mostly in tests.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(evt Event) {
	f(evt)
}
