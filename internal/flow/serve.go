package flow

import (
	"context"
	"errors"
	"io"
	"sync"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

// Transport is the messaging surface: it yields inbound inputs and delivers
// replies. Receive returns io.EOF once no more input will arrive.
type Transport interface {
	Receive(ctx context.Context) (Input, error)
	Send(ctx context.Context, externalID int64, reply Reply) error
}

const userQueueSize = 16

// Serve pumps inputs from t through the engine until t is exhausted or ctx is
// cancelled. Each user gets a queue so their inputs are answered in arrival
// order while other users proceed in parallel. Receiving never waits on a
// user: a full queue is answered with a busy reply instead.
func (e *Engine) Serve(ctx context.Context, t Transport) error {
	d := newDispatcher(e, t)
	defer d.wait()

	for {
		in, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		d.dispatch(ctx, in)
	}
}

// dispatcher owns the per-user queues. A worker exists only while its user
// has queued input and retires once the queue drains.
type dispatcher struct {
	engine    *Engine
	transport Transport

	mu     sync.Mutex
	queues map[int64]chan Input
	wg     sync.WaitGroup
}

func newDispatcher(e *Engine, t Transport) *dispatcher {
	return &dispatcher{engine: e, transport: t, queues: map[int64]chan Input{}}
}

func (d *dispatcher) dispatch(ctx context.Context, in Input) {
	d.mu.Lock()
	q, ok := d.queues[in.ExternalID]
	if !ok {
		q = make(chan Input, userQueueSize)
		d.queues[in.ExternalID] = q
		d.wg.Add(1)
		go d.work(ctx, in.ExternalID, q)
	}
	select {
	case q <- in:
		d.mu.Unlock()
		return
	default:
	}
	d.mu.Unlock()

	d.engine.log.Debug().Int64("external_id", in.ExternalID).Msg("user queue full")
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(ctx, in.ExternalID, errorReply(clierr.New(clierr.CodeRateLimited, "still working on your earlier messages, try again shortly")))
	}()
}

func (d *dispatcher) work(ctx context.Context, externalID int64, q chan Input) {
	defer d.wg.Done()
	for {
		next := <-q
		d.send(ctx, externalID, d.engine.Handle(ctx, next))

		d.mu.Lock()
		if len(q) == 0 {
			delete(d.queues, externalID)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

func (d *dispatcher) send(ctx context.Context, externalID int64, reply Reply) {
	if err := d.transport.Send(ctx, externalID, reply); err != nil {
		d.engine.log.Warn().Err(err).Int64("external_id", externalID).Msg("send reply")
	}
}

// active is the number of users with a live worker.
func (d *dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

func (d *dispatcher) wait() {
	d.wg.Wait()
}
