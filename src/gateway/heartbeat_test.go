package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestHeartbeatFirstBeatJittered(t *testing.T) {
	interval := 100 * time.Millisecond
	beats := make(chan time.Time, 16)
	hb := newHeartbeatSupervisor(interval, time.Second, func() error {
		beats <- time.Now()
		return nil
	}, func() {}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	start := time.Now()
	go hb.run(ctx)

	select {
	case first := <-beats:
		// First beat fires within one interval of start, never after.
		assert.Less(t, first.Sub(start), interval+20*time.Millisecond)
	case <-time.After(interval + 100*time.Millisecond):
		t.Fatal("first heartbeat never fired")
	}
	hb.ack()
}

func TestHeartbeatSteadyInterval(t *testing.T) {
	interval := 50 * time.Millisecond
	beats := make(chan time.Time, 16)
	hb := newHeartbeatSupervisor(interval, time.Second, func() error {
		beats <- time.Now()
		return nil
	}, func() {}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.run(ctx)

	var stamps []time.Time
	for len(stamps) < 3 {
		select {
		case ts := <-beats:
			stamps = append(stamps, ts)
			hb.ack()
		case <-time.After(time.Second):
			t.Fatal("heartbeats stalled")
		}
	}
	// Later beats are one interval apart, within scheduler slack.
	for i := 2; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.InDelta(t, float64(interval), float64(gap), float64(30*time.Millisecond))
	}
}

func TestHeartbeatAckTimeoutForcesClosure(t *testing.T) {
	timedOut := make(chan struct{})
	hb := newHeartbeatSupervisor(30*time.Millisecond, 40*time.Millisecond, func() error {
		return nil
	}, func() { close(timedOut) }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.run(ctx)

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("missing ack never forced a closure")
	}
}

func TestHeartbeatAckClearsDeadline(t *testing.T) {
	timedOut := make(chan struct{}, 1)
	beats := make(chan struct{}, 16)
	hb := newHeartbeatSupervisor(30*time.Millisecond, 60*time.Millisecond, func() error {
		beats <- struct{}{}
		return nil
	}, func() { timedOut <- struct{}{} }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.run(ctx)

	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case <-beats:
			hb.ack()
		case <-timedOut:
			t.Fatal("acknowledged heartbeats must not time out")
		case <-deadline:
			return
		}
	}
}

func TestHeartbeatDemandSendsImmediately(t *testing.T) {
	// A long interval: only a demanded beat can arrive quickly after the
	// jittered first one.
	beats := make(chan struct{}, 16)
	hb := newHeartbeatSupervisor(time.Second, 10*time.Second, func() error {
		beats <- struct{}{}
		return nil
	}, func() {}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.run(ctx)

	select {
	case <-beats:
	case <-time.After(2 * time.Second):
		t.Fatal("first heartbeat never fired")
	}
	hb.ack()

	hb.demand()
	select {
	case <-beats:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("demanded heartbeat never fired")
	}
	hb.ack()
}

func TestHeartbeatStopsOnCancel(t *testing.T) {
	beats := make(chan struct{}, 16)
	hb := newHeartbeatSupervisor(20*time.Millisecond, time.Second, func() error {
		beats <- struct{}{}
		return nil
	}, func() {}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.run(ctx)
		close(done)
	}()

	select {
	case <-beats:
		hb.ack()
	case <-time.After(time.Second):
		t.Fatal("no heartbeat before cancel")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}
}
