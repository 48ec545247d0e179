package notif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/user"
)

func TestBroker_publish(t *testing.T) {
	b := NewBroker()

	t.Run("No subscribers", func(t *testing.T) {
		assert.Zero(t, b.Publish(ChannelStudent, Event{Type: "donation.created"}))
	})

	t.Run("Only current subscribers receive", func(t *testing.T) {
		s1 := b.Connect("s1", "user-1")
		s2 := b.Connect("s2", "user-2")
		b.Join("s1", ChannelStudent)
		b.Join("s2", ChannelStudent, ChannelDonor)

		assert.Equal(t, 2, b.Publish(ChannelStudent, Event{Type: "donation.created"}))
		assert.Equal(t, 1, b.Publish(ChannelDonor, Event{Type: "request.created"}))

		assert.Equal(t, "donation.created", (<-s1.Events()).Type)
		assert.Equal(t, "donation.created", (<-s2.Events()).Type)
		assert.Equal(t, "request.created", (<-s2.Events()).Type)
	})

	t.Run("Events arrive in publish order", func(t *testing.T) {
		sess := b.Connect("s3", "user-3")
		b.Join("s3", ChannelAdmin)

		for _, typ := range []string{"first", "second", "third"} {
			b.Publish(ChannelAdmin, Event{Type: typ})
		}
		for _, typ := range []string{"first", "second", "third"} {
			assert.Equal(t, typ, (<-sess.Events()).Type)
		}
	})

	t.Run("Missing timestamp is filled in", func(t *testing.T) {
		sess := b.Connect("s4", "user-4")
		b.Join("s4", ChannelAdmin)

		b.Publish(ChannelAdmin, Event{Type: "payment.created"})
		assert.False(t, (<-sess.Events()).Timestamp.IsZero())
	})
}

func TestBroker_membership(t *testing.T) {
	b := NewBroker()
	sess := b.Connect("s1", "user-1")

	t.Run("Join is idempotent", func(t *testing.T) {
		b.Join("s1", ChannelStudent)
		b.Join("s1", ChannelStudent)
		assert.Equal(t, 1, b.Publish(ChannelStudent, Event{Type: "ping"}))
		<-sess.Events()
	})

	t.Run("Leave is idempotent", func(t *testing.T) {
		b.Leave("s1", ChannelStudent)
		b.Leave("s1", ChannelStudent)
		assert.Zero(t, b.Publish(ChannelStudent, Event{Type: "ping"}))
	})

	t.Run("Join with unknown session", func(t *testing.T) {
		b.Join("ghost", ChannelStudent)
		assert.Zero(t, b.Publish(ChannelStudent, Event{Type: "ping"}))
	})

	t.Run("LeaveAll clears every membership", func(t *testing.T) {
		b.Join("s1", ChannelStudent, ChannelDonor, ChannelAdmin)
		b.LeaveAll("s1")
		for _, ch := range []string{ChannelStudent, ChannelDonor, ChannelAdmin} {
			assert.Zero(t, b.Publish(ch, Event{Type: "ping"}))
		}
	})

	t.Run("Reconnect replaces the session", func(t *testing.T) {
		b.Join("s1", ChannelDonor)
		replacement := b.Connect("s1", "user-1")

		// the old stream is closed and its subscriptions are gone
		_, open := <-sess.Events()
		assert.False(t, open)
		assert.Zero(t, b.Publish(ChannelDonor, Event{Type: "ping"}))

		b.Join("s1", ChannelDonor)
		assert.Equal(t, 1, b.Publish(ChannelDonor, Event{Type: "ping"}))
		<-replacement.Events()
	})

	t.Run("Disconnect closes the stream", func(t *testing.T) {
		b.Disconnect("s1")
		b.Disconnect("s1") // no-op

		assert.Zero(t, b.Publish(ChannelDonor, Event{Type: "ping"}))
	})
}

func TestBroker_overflow(t *testing.T) {
	origBuffer := core.Conf.Notif.SessionBuffer
	core.Conf.Notif.SessionBuffer = 2
	t.Cleanup(func() { core.Conf.Notif.SessionBuffer = origBuffer })

	b := NewBroker()
	sess := b.Connect("s1", "user-1")
	b.Join("s1", ChannelAdmin)

	// a slow consumer misses events instead of blocking the publisher
	assert.Equal(t, 1, b.Publish(ChannelAdmin, Event{Type: "first"}))
	assert.Equal(t, 1, b.Publish(ChannelAdmin, Event{Type: "second"}))
	assert.Zero(t, b.Publish(ChannelAdmin, Event{Type: "dropped"}))

	assert.Equal(t, "first", (<-sess.Events()).Type)
	assert.Equal(t, "second", (<-sess.Events()).Type)
	require.Empty(t, sess.Events())
}

func TestChannelsForUser(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  []string
	}{
		{name: "student", roles: []string{user.RoleStudent}, want: []string{ChannelStudent, "user:u1"}},
		{name: "donor", roles: []string{user.RoleDonor}, want: []string{ChannelDonor, "user:u1"}},
		{name: "admin", roles: []string{user.RoleAdmin}, want: []string{ChannelStudent, ChannelDonor, ChannelAdmin, "user:u1"}},
		{name: "no roles", want: []string{"user:u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr := user.User{ID: "u1", Roles: tt.roles}
			assert.ElementsMatch(t, tt.want, ChannelsForUser(usr))
		})
	}
}
