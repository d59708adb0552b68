package runner

import (
	"time"

	"github.com/haasonsaas/mech/internal/mech/mecherr"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// inactivityTimeout is the 300-second window from spec 4.C: each pull from
// the underlying stream races against a re-armable timer.
const inactivityTimeout = 300 * time.Second

// relayWithInactivityTimeout races each event from upstream against a
// re-armable timer, grounded on the spec's design note that streaming
// timeouts are best expressed as a wrapping sequence that races each pull
// against a timer with deterministic upstream cleanup. cancel is called
// exactly once, on timeout, normal completion, or upstream error, to stop
// the provider's in-flight request.
//
// It returns a channel of events (including a terminal EventError on
// timeout) and closes that channel when upstream closes or the timeout
// fires.
func relayWithInactivityTimeout(upstream <-chan mechmodels.Event, cancel func(), timeout time.Duration) <-chan mechmodels.Event {
	if timeout <= 0 {
		timeout = inactivityTimeout
	}
	out := make(chan mechmodels.Event, 4)
	go func() {
		defer close(out)
		defer cancel()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for {
			select {
			case event, ok := <-upstream:
				if !timer.Stop() {
					<-drainTimer(timer)
				}
				if !ok {
					return
				}
				out <- event
				timer.Reset(timeout)
			case <-timer.C:
				out <- mechmodels.Event{Type: mechmodels.EventError, Error: mecherr.ErrInactivityTimeout.Error()}
				return
			}
		}
	}()
	return out
}

// drainTimer returns a channel that is already closed/empty-drained so the
// caller's receive above never blocks on a timer that already fired
// concurrently with the upstream event arriving.
func drainTimer(t *time.Timer) <-chan time.Time {
	ch := make(chan time.Time, 1)
	select {
	case v := <-t.C:
		ch <- v
	default:
	}
	close(ch)
	return ch
}
