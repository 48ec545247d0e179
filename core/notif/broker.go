package notif

import (
	"sync"
	"time"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/user"
)

// Standard broadcast channels. Each user additionally owns a private
// channel (see ChannelUser) for targeted notifications.
const (
	ChannelStudent = "student"
	ChannelDonor   = "donor"
	ChannelAdmin   = "admin"
)

// ChannelUser returns the private channel of a given user identity.
func ChannelUser(id string) string {
	return "user:" + id
}

// roleChannels maps a role prefix to the broadcast channels it subscribes to.
var roleChannels = map[string][]string{
	user.RoleStudent: {ChannelStudent},
	user.RoleDonor:   {ChannelDonor},
	user.RoleAdmin:   {ChannelStudent, ChannelDonor, ChannelAdmin},
}

// ChannelsForUser resolves the full channel set a user should be joined to
// on connect: their role feeds plus their private channel.
func ChannelsForUser(usr user.User) []string {
	seen := make(map[string]bool)
	channels := make([]string, 0, 4)
	for prefix, chans := range roleChannels {
		if !usr.RoleStartsWith(prefix) {
			continue
		}
		for _, ch := range chans {
			if !seen[ch] {
				seen[ch] = true
				channels = append(channels, ch)
			}
		}
	}
	return append(channels, ChannelUser(usr.ID))
}

// Event is the payload fanned out to channel subscribers.
type Event struct {
	Type        string    `json:"event_type"`
	DonationID  string    `json:"donation_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	PaymentID   string    `json:"payment_id,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Description string    `json:"description,omitempty"`
	Urgency     string    `json:"urgency,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type (
	// Broker is the in-process subscription table: it maps live sessions to the
	// channels they joined and fans events out to current subscribers only.
	// It is purely ephemeral presence state; nothing is persisted and there is
	// no redelivery on reconnect.
	Broker struct {
		mu       sync.RWMutex
		sessions map[string]*Session
		channels map[string]map[string]*Session // channel -> session ID -> session
		buffer   int
	}

	// Session is one live subscriber connection. Events are received on Events()
	// in publish order per channel. A session that cannot keep up has overflowing
	// events dropped rather than blocking publishers.
	Session struct {
		ID     string
		UserID string
		events chan Event
	}
)

func (s *Session) Events() <-chan Event {
	return s.events
}

func NewBroker() *Broker {
	buffer := core.Conf.Notif.SessionBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		sessions: make(map[string]*Session),
		channels: make(map[string]map[string]*Session),
		buffer:   buffer,
	}
}

// Connect registers a new session. An existing session with the same ID is
// disconnected first.
func (b *Broker) Connect(sessionID, userID string) *Session {
	b.Disconnect(sessionID)

	b.mu.Lock()
	defer b.mu.Unlock()

	sess := &Session{
		ID:     sessionID,
		UserID: userID,
		events: make(chan Event, b.buffer),
	}
	b.sessions[sessionID] = sess
	return sess
}

// Join adds the session to a channel's subscriber set; idempotent.
// Joining with an unknown session is a no-op.
func (b *Broker) Join(sessionID string, channels ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	for _, channel := range channels {
		subs, ok := b.channels[channel]
		if !ok {
			subs = make(map[string]*Session)
			b.channels[channel] = subs
		}
		subs[sessionID] = sess
	}
}

// Leave removes the session from a channel's subscriber set; idempotent.
func (b *Broker) Leave(sessionID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leave(sessionID, channel)
}

// LeaveAll removes the session from every channel it joined.
func (b *Broker) LeaveAll(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel := range b.channels {
		b.leave(sessionID, channel)
	}
}

func (b *Broker) leave(sessionID, channel string) {
	if subs, ok := b.channels[channel]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(b.channels, channel)
		}
	}
}

// Disconnect leaves all channels and closes the session's event stream.
// Invoked when the underlying transport connection goes away.
func (b *Broker) Disconnect(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	for channel := range b.channels {
		b.leave(sessionID, channel)
	}
	delete(b.sessions, sessionID)
	close(sess.events)
}

// Publish delivers the event to every session currently subscribed to the
// channel and reports how many received it. Fire-and-forget: publishing to a
// channel with no subscribers delivers to zero recipients, and a subscriber
// whose queue is full misses the event instead of delaying anyone.
func (b *Broker) Publish(channel string, event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var delivered int
	for _, sess := range b.channels[channel] {
		select {
		case sess.events <- event:
			delivered++
		default: // queue full; expected presence gap
		}
	}
	return delivered
}
