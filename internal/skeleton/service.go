// Package skeleton implements the dual-loop service base described in
// SPEC_FULL.md §4.1: an async Bus Loop handing work off to a dedicated
// Worker Loop that is the only goroutine ever allowed to touch a
// broker.Gateway, plus a Heartbeat that logs once a second and reports
// when the Worker Loop has exited. The liveness/crash-on-stall rule is
// enforced by the Worker Loop itself.
package skeleton

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/constants"
)

// Service wires a broker.Gateway-owning Worker Loop to a Bus Loop
// handoff channel. Callers set OnHandoff and OnTick, then call Run.
type Service struct {
	Gateway broker.Gateway

	// Handoff is the bounded hand-off queue the Bus Loop enqueues onto
	// and only the Worker Loop drains. Capacity constants.HandoffQueueCapacity.
	Handoff chan bus.Envelope

	// DrainTimeout bounds each Gateway.Drain call.
	DrainTimeout time.Duration

	// BlockCounterMax is the number of consecutive failed drains during
	// trading hours tolerated before the process exits fatally.
	BlockCounterMax int

	// InTradingSession reports whether t falls inside a trading window;
	// failed drains outside trading hours never count toward the
	// liveness counter. When nil, every failed drain counts.
	InTradingSession func(t time.Time) bool

	// OnHandoff processes one envelope pulled from Handoff. It must not
	// block on I/O outside the broker session.
	OnHandoff func(ctx context.Context, gw broker.Gateway, env bus.Envelope)

	// OnTick runs once after every successful drain, after the handoff
	// queue has been drained. Used for snapshot-diff polling.
	OnTick func(ctx context.Context, gw broker.Gateway)

	Logger zerolog.Logger

	// Exit is called with a nonzero code when the liveness counter is
	// exceeded. Defaults to os.Exit; tests override it.
	Exit func(code int)

	alive chan struct{}
}

// NewHandoff allocates a handoff channel of the standard capacity.
func NewHandoff() chan bus.Envelope {
	return make(chan bus.Envelope, constants.HandoffQueueCapacity)
}

// Run starts the Heartbeat and Worker Loop and blocks until ctx is
// canceled or the Worker Loop exits (normally only via Exit on fatal
// liveness failure).
func (s *Service) Run(ctx context.Context) {
	if s.Exit == nil {
		s.Exit = os.Exit
	}
	if s.BlockCounterMax == 0 {
		s.BlockCounterMax = constants.BlockCounterMax
	}
	if s.DrainTimeout == 0 {
		s.DrainTimeout = time.Second
	}
	s.alive = make(chan struct{})

	go s.heartbeat(ctx)
	s.runWorker(ctx)
}

func (s *Service) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.alive:
			s.Logger.Error().Msg("worker loop exited, shutting down")
			return
		case <-ticker.C:
			s.Logger.Debug().Msg("heartbeat")
		}
	}
}

func (s *Service) runWorker(ctx context.Context) {
	defer close(s.alive)

	blockCounter := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ok, err := s.Gateway.Drain(ctx, s.DrainTimeout)
		if err != nil && ctx.Err() != nil {
			return
		}
		if !ok || err != nil {
			if s.InTradingSession == nil || s.InTradingSession(time.Now()) {
				blockCounter++
				s.Logger.Warn().Int("block_counter", blockCounter).Err(err).Msg("drain failed")
				if blockCounter > s.BlockCounterMax {
					s.Logger.Error().Int("block_counter", blockCounter).Msg("liveness exceeded, exiting for supervised restart")
					s.Exit(1)
					return
				}
			}
			continue
		}
		blockCounter = 0

	drainHandoff:
		for {
			select {
			case env, okCh := <-s.Handoff:
				if !okCh {
					break drainHandoff
				}
				if s.OnHandoff != nil {
					s.OnHandoff(ctx, s.Gateway, env)
				}
			default:
				break drainHandoff
			}
		}

		if s.OnTick != nil {
			s.OnTick(ctx, s.Gateway)
		}
	}
}

// HandlerService is the simplified single-loop base for services that
// never touch a broker.Gateway (the three Handlers): just consume the
// bus and call Handle per message, no liveness machinery.
type HandlerService struct {
	Consumer *bus.Consumer
	Handle   func(ctx context.Context, env bus.Envelope)
	Logger   zerolog.Logger
}

// Run consumes until ctx is canceled.
func (h *HandlerService) Run(ctx context.Context) error {
	return h.Consumer.Run(ctx, h.Handle)
}
