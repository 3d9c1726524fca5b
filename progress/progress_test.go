package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyWithoutListener(t *testing.T) {
	var c Channel
	assert.Equal(t, NoListener, c.Notify(Update{Percent: 10}))

	var nilChannel *Channel
	assert.Equal(t, NoListener, nilChannel.Notify(Update{Percent: 10}))
}

func TestNotifyDeliversAndClamps(t *testing.T) {
	var got []Update
	c := NewChannel(func(u Update) { got = append(got, u) })

	assert.Equal(t, Delivered, c.Notify(Update{Percent: 50, Message: "halfway"}))
	c.Notify(Update{Percent: 140})
	c.Notify(Update{Percent: -3})

	assert.Equal(t, []Update{{Percent: 50, Message: "halfway"}, {Percent: 100}, {Percent: 0}}, got)

	c.Subscribe(nil)
	assert.Equal(t, NoListener, c.Notify(Update{Percent: 60}))
	assert.Len(t, got, 3)
}
