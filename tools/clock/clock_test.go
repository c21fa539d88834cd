package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(time.Second, func() {
		got = append(got, "a")
		c.AfterFunc(500*time.Millisecond, func() { got = append(got, "a2") })
	})
	stop := c.AfterFunc(1500*time.Millisecond, func() { got = append(got, "stopped") })
	assert.True(t, stop.Stop())
	assert.False(t, stop.Stop())

	c.Advance(1999 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2"}, got)
	c.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b"}, got)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, time.Unix(2, 0), c.Now())
}

func TestFakeNextIn(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	_, ok := c.NextIn()
	assert.False(t, ok)
	c.AfterFunc(3*time.Second, func() {})
	d, ok := c.NextIn()
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)
}
