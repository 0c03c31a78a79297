package notify

import "tableside/internal/domain"

// Subscriber is one realtime connection. Group membership and the closed flag
// are guarded by the owning Bus.
type Subscriber struct {
	id         string
	remoteAddr string
	send       chan []byte

	identity *domain.Identity
	table    string
	groups   map[string]struct{}
	closed   bool
}

func (s *Subscriber) ID() string {
	return s.id
}

func (s *Subscriber) RemoteAddr() string {
	return s.remoteAddr
}

// Messages yields encoded envelopes. It is closed when the subscriber is
// disconnected or the bus shuts down.
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}
