package gitstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(0)

	assert.Nil(t, c.Get(Key("branch", "/tmp/wt")))

	c.Set(Key("branch", "/tmp/wt"), "feature")
	assert.Equal(t, "feature", c.Get(Key("branch", "/tmp/wt")))
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(10 * time.Second)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("phase:/tmp/wt", "coding")

	// Strictly before expiry the value is served.
	c.now = func() time.Time { return base.Add(9 * time.Second) }
	assert.Equal(t, "coding", c.Get("phase:/tmp/wt"))

	// Past the TTL the entry is dropped on read.
	c.now = func() time.Time { return base.Add(11 * time.Second) }
	assert.Nil(t, c.Get("phase:/tmp/wt"))
	assert.Zero(t, c.Len())
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(0)
	c.Set("a:/x", 1)
	c.Set("b:/x", 2)
	c.Set("a:/y", 3)

	c.Invalidate("a:/x")
	assert.Nil(t, c.Get("a:/x"))
	assert.Equal(t, 2, c.Get("b:/x"))

	c.InvalidateAll()
	assert.Nil(t, c.Get("b:/x"))
	assert.Nil(t, c.Get("a:/y"))
}

func TestCache_InvalidatePath(t *testing.T) {
	c := NewCache(0)
	c.Set(Key("branch", "/repo/wt1"), "b1")
	c.Set(Key("phase", "/repo/wt1"), "coding")
	c.Set(Key("phase", "/repo/wt2"), "review")

	c.InvalidatePath("/repo/wt1")

	assert.Nil(t, c.Get(Key("branch", "/repo/wt1")))
	assert.Nil(t, c.Get(Key("phase", "/repo/wt1")))
	assert.Equal(t, "review", c.Get(Key("phase", "/repo/wt2")))
}
