package report

import (
	"fmt"
	"log/slog"
	"sync"
)

// Reporter receives unrecovered pipeline failures and forwards them to the
// error channel. Consecutive reports of the same failure value are
// suppressed: a single logical fault is often surfaced redundantly by
// several layers of the pipeline, and only the first sighting is worth a
// record. Dedup is by identity, not message equality; two distinct errors
// with identical text are both logged.
type Reporter struct {
	log *slog.Logger

	mu   sync.Mutex
	last error
}

func New(log *slog.Logger) *Reporter {
	return &Reporter{log: log}
}

// OnError evaluates a failure and logs it unless it is the same value as
// the immediately preceding report. The compare-and-store runs under the
// mutex so rapid distinct failures are never coalesced.
func (r *Reporter) OnError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	if sameError(r.last, err) {
		r.mu.Unlock()
		return
	}
	r.last = err
	r.mu.Unlock()

	r.log.Error(fmt.Sprintf("%T", err), "error", err.Error())
}

// sameError reports whether a and b are the same failure value. Interface
// comparison panics on non-comparable dynamic types, so those are treated
// as always distinct.
func sameError(a, b error) (same bool) {
	if a == nil || b == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
