package testutil

import "sync"

type PublishedEvent struct {
	Group   string
	Event   string
	Payload any
}

// RecordingNotifier captures every published event in order.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func (n *RecordingNotifier) Publish(group, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, PublishedEvent{Group: group, Event: event, Payload: payload})
}

func (n *RecordingNotifier) Events() []PublishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]PublishedEvent, len(n.events))
	copy(out, n.events)
	return out
}

func (n *RecordingNotifier) ForGroup(group string) []PublishedEvent {
	var out []PublishedEvent
	for _, e := range n.Events() {
		if e.Group == group {
			out = append(out, e)
		}
	}
	return out
}

func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}
