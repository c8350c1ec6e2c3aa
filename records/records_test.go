package records

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func key(b byte) Key {
	var k Key
	k[0] = b
	return k
}

func addr(s string) netip.AddrPort {
	a, _ := netip.ParseAddrPort(s)
	return a
}

func TestNewRejectsBound(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)

	r, err := New(0, 10)
	assert.NoError(t, err)
	assert.NotNil(t, r)
}

func TestAddGet(t *testing.T) {
	r, _ := New(0, 10)

	a1 := addr("1.1.1.1:6881")
	a2 := addr("2.2.2.2:6881")

	r.Add(key(1), a1)
	r.Add(key(1), a2)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []netip.AddrPort{a1, a2}, r.Get(key(1)))
	assert.Nil(t, r.Get(key(2)))
}

func TestReAnnounceRefreshes(t *testing.T) {
	r, _ := New(0, 10)

	a1 := addr("1.1.1.1:6881")
	r.Add(key(1), a1)
	r.Add(key(1), a1)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []netip.AddrPort{a1}, r.Get(key(1)))
}

func TestGlobalCapEvictsOldestKey(t *testing.T) {
	r, _ := New(0, 2)

	r.Add(key(1), addr("1.1.1.1:6881"))
	r.Add(key(2), addr("2.2.2.2:6881"))
	r.Add(key(3), addr("3.3.3.3:6881"))

	assert.Equal(t, 2, r.Len())
	assert.Nil(t, r.Get(key(1)))
	assert.NotNil(t, r.Get(key(2)))
	assert.NotNil(t, r.Get(key(3)))
}

func TestExpiry(t *testing.T) {
	r, _ := New(time.Minute, 10)

	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }

	a1 := addr("1.1.1.1:6881")
	a2 := addr("2.2.2.2:6881")
	r.Add(key(1), a1)

	clock = clock.Add(30 * time.Second)
	r.Add(key(1), a2)
	assert.Equal(t, []netip.AddrPort{a1, a2}, r.Get(key(1)))

	// a1 ages out, a2 is still live.
	clock = clock.Add(45 * time.Second)
	assert.Equal(t, []netip.AddrPort{a2}, r.Get(key(1)))
	assert.Equal(t, 1, r.Len())

	clock = clock.Add(time.Hour)
	assert.Nil(t, r.Get(key(1)))
	assert.Equal(t, 0, r.Len())
}

func TestGC(t *testing.T) {
	r, _ := New(time.Minute, 10)

	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }

	r.Add(key(1), addr("1.1.1.1:6881"))
	r.Add(key(2), addr("2.2.2.2:6881"))

	clock = clock.Add(30 * time.Second)
	r.Add(key(2), addr("3.3.3.3:6881"))

	clock = clock.Add(45 * time.Second)
	r.GC()

	assert.Equal(t, 1, r.Len())
	assert.Nil(t, r.Get(key(1)))
	assert.Equal(t, []netip.AddrPort{addr("3.3.3.3:6881")}, r.Get(key(2)))
}

func TestGCDisabledWithoutMaxAge(t *testing.T) {
	r, _ := New(0, 10)

	r.Add(key(1), addr("1.1.1.1:6881"))
	r.GC()

	assert.Equal(t, 1, r.Len())
}
