package gateway

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// heartbeatSupervisor keeps the connection alive and detects silent
// failure, independently of message processing. The first beat fires
// after a uniformly jittered fraction of the interval, every later beat
// exactly one interval apart. Each send arms an ack deadline; if the
// server's HEARTBEAT_ACK does not land in time the supervisor forces a
// protocol error closure so a half open connection is never mistaken for
// a healthy one.
type heartbeatSupervisor struct {
	interval   time.Duration
	ackTimeout time.Duration

	beat      func() error
	onTimeout func()

	acks    chan struct{}
	demands chan struct{}

	log zerolog.Logger
}

func newHeartbeatSupervisor(interval time.Duration, ackTimeout time.Duration, beat func() error, onTimeout func(), logger zerolog.Logger) *heartbeatSupervisor {
	return &heartbeatSupervisor{
		interval:   interval,
		ackTimeout: ackTimeout,
		beat:       beat,
		onTimeout:  onTimeout,
		acks:       make(chan struct{}, 1),
		demands:    make(chan struct{}, 1),
		log:        logger,
	}
}

// ack clears the pending deadline. Safe from the receive loop.
func (hb *heartbeatSupervisor) ack() {
	select {
	case hb.acks <- struct{}{}:
	default:
	}
}

// demand requests an immediate beat, used when the server sends
// HEARTBEAT(1).
func (hb *heartbeatSupervisor) demand() {
	select {
	case hb.demands <- struct{}{}:
	default:
	}
}

func (hb *heartbeatSupervisor) run(ctx context.Context) {
	jitter := time.Duration(rand.Float64() * float64(hb.interval))
	first := time.NewTimer(jitter)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}

	deadline := time.NewTimer(hb.ackTimeout)
	deadline.Stop()
	defer deadline.Stop()
	pending := false

	send := func() {
		if err := hb.beat(); err != nil {
			hb.log.Warn().Err(err).Msg("failed to send heartbeat")
			return
		}
		// An already pending deadline stays armed: it is cleared only by
		// a matching ack or by the forced closure.
		if !pending {
			deadline.Reset(hb.ackTimeout)
			pending = true
		}
	}
	send()

	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		case <-hb.demands:
			send()
		case <-hb.acks:
			if pending {
				if !deadline.Stop() {
					select {
					case <-deadline.C:
					default:
					}
				}
				pending = false
			}
		case <-deadline.C:
			pending = false
			hb.log.Warn().Dur("ack_timeout", hb.ackTimeout).Msg("heartbeat not acknowledged in time")
			hb.onTimeout()
			return
		}
	}
}
