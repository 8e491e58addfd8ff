package loop

import (
	"sync"

	"github.com/zoeyai/autotap/internal/logger"
)

type event struct {
	status *Status
	report *Report
}

// notifier 在独立 goroutine 中按顺序投递通知
type notifier struct {
	mu        sync.Mutex
	queue     []event
	listeners map[int]Listener
	nextID    int
	idle      *sync.Cond
	busy      bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newNotifier() *notifier {
	n := &notifier{
		listeners: make(map[int]Listener),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	n.idle = sync.NewCond(&n.mu)
	go n.loop()
	return n
}

func (n *notifier) subscribe(l Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

func (n *notifier) publish(ev event) {
	n.mu.Lock()
	if len(n.listeners) == 0 {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, ev)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) loop() {
	defer close(n.done)
	for {
		select {
		case <-n.quit:
			return
		case <-n.wake:
		}

		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				n.busy = false
				n.idle.Broadcast()
				n.mu.Unlock()
				break
			}
			n.busy = true
			events := n.queue
			n.queue = nil
			listeners := make([]Listener, 0, len(n.listeners))
			for _, l := range n.listeners {
				listeners = append(listeners, l)
			}
			n.mu.Unlock()

			for _, ev := range events {
				for _, l := range listeners {
					deliver(l, ev)
				}
			}
		}
	}
}

func deliver(l Listener, ev event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("状态通知处理崩溃: %v", r)
		}
	}()
	if ev.status != nil {
		l.StatusChanged(*ev.status)
	}
	if ev.report != nil {
		l.TickCompleted(*ev.report)
	}
}

// flush 等待已发布的通知全部投递完
func (n *notifier) flush() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.queue) > 0 || n.busy {
		select {
		case <-n.done:
			return
		default:
		}
		n.idle.Wait()
	}
}

func (n *notifier) close() {
	n.once.Do(func() {
		close(n.quit)
		<-n.done
		n.mu.Lock()
		n.busy = false
		n.queue = nil
		n.idle.Broadcast()
		n.mu.Unlock()
	})
}
