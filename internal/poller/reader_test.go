package poller

import (
	"context"
	"sync/atomic"

	"github.com/ethpandaops/brickdash/internal/plc"
)

// blockingReader ignores cancellation and blocks until released, like a
// reader stuck in a syscall.
type blockingReader struct {
	release chan struct{}
	started atomic.Bool
}

func (r *blockingReader) Fetch(_ context.Context) (*plc.Reading, error) {
	r.started.Store(true)
	<-r.release

	return nil, plc.ErrFetch
}
