package scheduler

import (
	"context"
	"sync"
	"time"
)

// hookTimeout bounds the context handed to a single lifecycle hook.
const hookTimeout = 5 * time.Second

// notifier delivers lifecycle notices to extensions on its own goroutine,
// in the order they were pushed. The coordinator only appends to the
// queue, so a slow hook never holds up dispatch, timeouts or retries.
type notifier struct {
	deliver func(context.Context, notice)
	timeout time.Duration

	mu     sync.Mutex
	queue  []notice
	closed bool

	kick chan struct{}
	done chan struct{}
}

func newNotifier(deliver func(context.Context, notice), timeout time.Duration) *notifier {
	return &notifier{
		deliver: deliver,
		timeout: timeout,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (n *notifier) start() { go n.loop() }

// push queues notices for delivery. Notices pushed after close are
// dropped.
func (n *notifier) push(notices []notice) {
	if len(notices) == 0 {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, notices...)
	n.mu.Unlock()
	n.signal()
}

// close stops accepting notices and waits until the queued ones have been
// delivered or ctx is done.
func (n *notifier) close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.signal()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *notifier) signal() {
	select {
	case n.kick <- struct{}{}:
	default:
	}
}

func (n *notifier) loop() {
	defer close(n.done)

	for {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-n.kick
			continue
		}
		for _, nt := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			n.deliver(ctx, nt)
			cancel()
		}
	}
}
