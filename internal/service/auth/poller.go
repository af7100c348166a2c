// internal/service/auth/poller.go
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"physioportal-client/internal/domain/auth"
	"physioportal-client/internal/gateway"
	xerrors "physioportal-client/internal/pkg/errors"

	"go.uber.org/zap"
)

// PollHooks receive the terminal outcome of an order, plus QR refreshes on
// pending ticks. Exactly one of OnSuccess/OnFailed fires, exactly once.
type PollHooks struct {
	OnSuccess func(resp *auth.OrderStatusResponse)
	OnFailed  func(err error)
	OnQR      func(payload string)
}

// Poller drives the fixed-interval status poll of an other-device BankID
// order. One poller instance can serve many challenges, but each Start
// spawns at most one polling task for its challenge.
type Poller struct {
	gw       *gateway.Client
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPoller(gw *gateway.Client, interval, timeout time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{gw: gw, interval: interval, timeout: timeout, logger: logger}
}

// Start begins polling the challenge and returns the stop handle. The handle
// is idempotent and safe to call after a terminal tick; callers must invoke
// it (or already have observed a terminal hook) before discarding the
// challenge so no detached timer outlives it.
//
// The poller never mutates the challenge: its order fields are read once
// here, and status changes and QR rotations reach the owner only through
// the hooks.
//
// The backend enforces no observable order expiry, so a client-side timeout
// (zero disables it) bounds the poll defensively; it surfaces through
// OnFailed as ErrPollTimeout.
func (p *Poller) Start(ctx context.Context, ch *auth.BankIDChallenge, hooks PollHooks) (stop func()) {
	orderRef := ch.OrderRef
	qrStartToken := ch.QRStartToken
	qrStartSecret := ch.QRStartSecret
	lastQR := ch.QRPayload

	done := make(chan struct{})
	var once sync.Once
	stop = func() { once.Do(func() { close(done) }) }

	var deadline <-chan time.Time
	if p.timeout > 0 {
		t := time.NewTimer(p.timeout)
		deadline = t.C
		go func() {
			<-done
			t.Stop()
		}()
	}

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		// Every exit path below goes through stop, so a terminal tick and a
		// caller-issued cancellation cannot both fire hooks.
		defer stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-deadline:
				p.logger.Warn("bankid poll timed out", zap.String("order_ref", orderRef))
				hooks.fail(xerrors.ErrPollTimeout)
				return
			case <-ticker.C:
			}

			resp, err := p.gw.OrderStatus(ctx, orderRef, qrStartToken, qrStartSecret)
			select {
			case <-done:
				// Cancelled while the request was in flight; the challenge
				// may already be discarded, so drop the result.
				return
			default:
			}

			switch {
			case err != nil:
				if errors.Is(err, context.Canceled) {
					return
				}
				p.logger.Warn("bankid poll request failed",
					zap.String("order_ref", orderRef),
					zap.Error(err),
				)
				hooks.fail(err)
				return
			case resp.Completed():
				p.logger.Info("bankid order completed", zap.String("order_ref", orderRef))
				if hooks.OnSuccess != nil {
					hooks.OnSuccess(resp)
				}
				return
			case resp.Failed():
				p.logger.Info("bankid order failed", zap.String("order_ref", orderRef))
				hooks.fail(&xerrors.APIError{Status: 200, Message: "BankID authentication failed"})
				return
			default:
				// Still pending; the QR payload rotates while the order is
				// open, refresh the display when a new one arrives.
				if qr := resp.Data.QRData; qr != "" && qr != lastQR {
					lastQR = qr
					if hooks.OnQR != nil {
						hooks.OnQR(qr)
					}
				}
			}
		}
	}()

	return stop
}

func (h PollHooks) fail(err error) {
	if h.OnFailed != nil {
		h.OnFailed(err)
	}
}
