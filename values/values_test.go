package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func key(b byte) Key {
	var k Key
	k[0] = b
	return k
}

func TestNewRejectsBound(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-5)
	assert.Error(t, err)

	v, err := New(1)
	assert.NoError(t, err)
	assert.NotNil(t, v)
}

func TestPutGet(t *testing.T) {
	v, _ := New(10)

	val := Value{Id: []byte("node"), Token: []byte("tok"), V: []byte("payload")}
	v.Put(key(1), val)

	got, ok := v.Get(key(1))
	assert.True(t, ok)
	assert.Equal(t, val, got)

	_, ok = v.Get(key(2))
	assert.False(t, ok)
}

func TestPutRefreshesExisting(t *testing.T) {
	v, _ := New(10)

	v.Put(key(1), Value{V: []byte("old")})
	v.Put(key(1), Value{V: []byte("new")})

	assert.Equal(t, 1, v.Len())
	got, _ := v.Get(key(1))
	assert.Equal(t, []byte("new"), got.V)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	v, _ := New(2)

	v.Put(key(1), Value{V: []byte("one")})
	v.Put(key(2), Value{V: []byte("two")})

	// Touch key 1 so key 2 becomes the LRU victim.
	v.Get(key(1))

	v.Put(key(3), Value{V: []byte("three")})

	assert.Equal(t, 2, v.Len())
	_, ok := v.Get(key(2))
	assert.False(t, ok)
	_, ok = v.Get(key(1))
	assert.True(t, ok)
	_, ok = v.Get(key(3))
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	v, _ := New(10)

	v.Put(key(1), Value{V: []byte("one")})
	v.Remove(key(1))
	v.Remove(key(2)) // No-op.

	assert.Equal(t, 0, v.Len())
}

func TestKeysOrderedByRecency(t *testing.T) {
	v, _ := New(10)

	v.Put(key(1), Value{})
	v.Put(key(2), Value{})
	v.Put(key(3), Value{})
	v.Get(key(1)) // Refresh.

	assert.Equal(t, []Key{key(2), key(3), key(1)}, v.Keys())
}
