package store

import "sync"

// notifier fans out per-family change signals to subscribers.
//
// Sends are non-blocking; a buffer of 1 coalesces bursts.
type notifier struct {
	mu     sync.Mutex
	subs   map[Family]map[int]chan struct{}
	next   int
	closed bool
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[Family]map[int]chan struct{})}
}

func (n *notifier) subscribe(family Family) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.next
	n.next++
	if n.subs[family] == nil {
		n.subs[family] = make(map[int]chan struct{})
	}
	n.subs[family][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[family][id]; ok {
				delete(n.subs[family], id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (n *notifier) notify(families map[Family]bool) {
	if len(families) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	for family := range families {
		for _, ch := range n.subs[family] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for family, subs := range n.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(n.subs, family)
	}
}
