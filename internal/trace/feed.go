package trace

import "sync"

// Feed fans appended traces out to in-process subscribers of the same
// organization. Slow subscribers lose events rather than stall the writer.
type Feed struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription receives traces on C until it is cancelled.
type Subscription struct {
	organizationID string
	C              <-chan Trace
	ch             chan Trace
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in one organization's traces. The returned
// function removes the subscription and closes its channel.
func (f *Feed) Subscribe(organizationID string, buffer int) (*Subscription, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Trace, buffer)
	sub := &Subscription{organizationID: organizationID, C: ch, ch: ch}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, sub)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers t to every subscriber of its organization without
// blocking.
func (f *Feed) Publish(t Trace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if sub.organizationID != t.OrganizationID {
			continue
		}
		select {
		case sub.ch <- t:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
