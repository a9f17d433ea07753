package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Async delivers events to Sink on a background goroutine. Publish never
// blocks the caller; each delivery is cut off after Timeout and failures are
// only logged.
type Async struct {
	Name    string
	Sink    Sink
	Timeout time.Duration

	wg sync.WaitGroup
}

func NewAsync(name string, sink Sink, timeout time.Duration) *Async {
	return &Async{Name: name, Sink: sink, Timeout: timeout}
}

func (a *Async) Publish(ctx context.Context, e Event) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.deliver(context.WithoutCancel(ctx), e)
	}()
	return nil
}

func (a *Async) deliver(parent context.Context, e Event) {
	ctx, cancel := context.WithTimeout(parent, a.Timeout)
	defer cancel()

	// Sinks that ignore ctx keep running after the deadline; we stop waiting.
	done := make(chan error, 1)
	go func() { done <- a.Sink.Publish(ctx, e) }()

	log := logrus.WithFields(logrus.Fields{"sink": a.Name, "unique_id": e.UniqueID, "type": e.Type})
	select {
	case err := <-done:
		if err != nil {
			log.WithError(err).Warn("[events][async] delivery failed")
		}
	case <-ctx.Done():
		log.WithError(ctx.Err()).Warn("[events][async] delivery timed out")
	}
}

// Close waits for in-flight deliveries. Each one is bounded by Timeout.
func (a *Async) Close() error {
	a.wg.Wait()
	return nil
}
