package runner

import (
	"sync"

	"github.com/andy-broyles/matfree.app/internal/model"
)

// subscriberBufferSize is the channel buffer for each log subscriber.
// Lines are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// LogBroker fans out captured output lines of in-flight runs to subscribers.
// It is safe for concurrent use.
//
// Closed topics are kept as markers so that a subscriber arriving after a run
// finished receives a closed channel instead of blocking forever.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
}

type logTopic struct {
	subs   map[int]chan model.LogLine
	nextID int
	closed bool
}

// NewLogBroker creates a new log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

// Subscribe returns a channel that receives lines for the given run and an
// unsubscribe function. If the run has already finished, the returned channel
// is closed.
func (b *LogBroker) Subscribe(runID string) (<-chan model.LogLine, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		t = &logTopic{subs: make(map[int]chan model.LogLine)}
		b.topics[runID] = t
	}

	ch := make(chan model.LogLine, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a line to all subscribers of the given run and returns how
// many of them missed it because their buffer was full. A subscriber that
// misses lines can recover them from the stored history by seq.
func (b *LogBroker) Publish(runID string, line model.LogLine) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok || t.closed {
		return 0
	}

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
			// Never block the engine on a slow reader.
			dropped++
		}
	}
	return dropped
}

// Close signals that no more lines will be published for the given run.
func (b *LogBroker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		b.topics[runID] = &logTopic{subs: make(map[int]chan model.LogLine), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
