package connectFlow

import (
	"sync"

	"github.com/Layr-Labs/farbook-go/pkg/persistence"
	"go.uber.org/zap"
)

// recordWriter saves attempt records on its own goroutine so a slow store never
// holds up the flow. Records queued for the same attempt are coalesced: only the
// latest one is written.
type recordWriter struct {
	store  persistence.IAttemptPersistence
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*persistence.AttemptRecord
	order   []string

	wake     chan struct{}
	flushReq chan chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newRecordWriter(store persistence.IAttemptPersistence, l *zap.Logger) *recordWriter {
	w := &recordWriter{
		store:    store,
		logger:   l,
		pending:  make(map[string]*persistence.AttemptRecord),
		wake:     make(chan struct{}, 1),
		flushReq: make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue never blocks on the store
func (w *recordWriter) enqueue(record *persistence.AttemptRecord) {
	if w == nil {
		return
	}
	w.mu.Lock()
	if _, ok := w.pending[record.AttemptID]; !ok {
		w.order = append(w.order, record.AttemptID)
	}
	w.pending[record.AttemptID] = record
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// flush blocks until every record enqueued before the call has been written
func (w *recordWriter) flush() {
	if w == nil {
		return
	}
	reply := make(chan struct{})
	select {
	case w.flushReq <- reply:
		<-reply
	case <-w.done:
	}
}

// close writes what is still queued and stops the goroutine
func (w *recordWriter) close() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *recordWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case reply := <-w.flushReq:
			w.drain()
			close(reply)
		case <-w.stop:
			for w.drain() {
			}
			return
		}
	}
}

// drain writes one batch of queued records. It reports whether it wrote anything
// and re-arms wake when more records arrived meanwhile.
func (w *recordWriter) drain() bool {
	w.mu.Lock()
	if len(w.order) == 0 {
		w.mu.Unlock()
		return false
	}
	order, pending := w.order, w.pending
	w.order = nil
	w.pending = make(map[string]*persistence.AttemptRecord)
	w.mu.Unlock()

	for _, id := range order {
		if err := w.store.SaveAttempt(pending[id]); err != nil {
			w.logger.Sugar().Warnw("Failed to persist attempt", "error", err, "attempt_id", id)
		}
	}

	w.mu.Lock()
	more := len(w.order) > 0
	w.mu.Unlock()
	if more {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return true
}
