package mainline

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dhtlab/mainline/kbucket"
	"github.com/dhtlab/mainline/values"
)

func newTestNode(t *testing.T, opts Opts) *Node {
	t.Helper()

	n, err := New(opts, zap.NewNop())
	require.NoError(t, err)

	return n
}

// testId varies the trailing byte: the wrapping distance fold keeps the low
// bytes of full-width ids, so ordering assertions stay meaningful.
func testId(b byte) []byte {
	id := make([]byte, HashLength)
	id[HashLength-1] = b
	return id
}

func key(b byte) Key {
	var k Key
	k[0] = b
	return k
}

func addr(s string) netip.AddrPort {
	a, _ := netip.ParseAddrPort(s)
	return a
}

func TestDefaultOpts(t *testing.T) {
	opts := DefaultOpts()

	assert.Equal(t, 1000, opts.MaxTables)
	assert.Equal(t, 1000, opts.MaxValues)
	assert.Equal(t, 10000, opts.MaxPeers)
	assert.Equal(t, time.Duration(0), opts.MaxAge)
	assert.Equal(t, 240*time.Second, opts.TimeBucketOutdated)
}

func TestNewGeneratesNodeID(t *testing.T) {
	n := newTestNode(t, DefaultOpts())

	assert.Len(t, n.NodeID(), HashLength)
	assert.NotNil(t, n.Emitter())
	assert.NotNil(t, n.Secrets())
}

func TestNewRejectsShortNodeID(t *testing.T) {
	opts := DefaultOpts()
	opts.NodeID = []byte("short")

	_, err := New(opts, zap.NewNop())
	assert.Error(t, err)
}

func TestNewNilLoggerDefaultsToNop(t *testing.T) {
	n, err := New(DefaultOpts(), nil)
	require.NoError(t, err)

	require.NoError(t, n.Start())
	require.NoError(t, n.Close())
}

func TestStartClose(t *testing.T) {
	n := newTestNode(t, DefaultOpts())

	require.NoError(t, n.Start())
	require.NoError(t, n.Close())
}

func TestObserveClosest(t *testing.T) {
	opts := DefaultOpts()
	opts.NodeID = testId(0x00)
	n := newTestNode(t, opts)

	require.NoError(t, n.Observe(key(1), kbucket.NewPeer(testId(0x10), addr("1.1.1.1:6881"), nil)))
	require.NoError(t, n.Observe(key(1), kbucket.NewPeer(testId(0x11), addr("2.2.2.2:6881"), nil)))
	require.NoError(t, n.Observe(key(1), kbucket.NewPeer(testId(0x40), addr("3.3.3.3:6881"), nil)))

	closest, err := n.Closest(key(1), testId(0x11), 2)
	require.NoError(t, err)
	require.Len(t, closest, 2)
	assert.Equal(t, testId(0x11), closest[0].Id())
	assert.Equal(t, testId(0x10), closest[1].Id())

	// Tables are per key; nothing was observed under another one.
	other, err := n.Closest(key(2), testId(0x11), 2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestResolveEviction(t *testing.T) {
	n := newTestNode(t, DefaultOpts())

	failed := kbucket.NewPeer(testId(0x10), addr("1.1.1.1:6881"), nil)
	pending := kbucket.NewPeer(testId(0x20), addr("2.2.2.2:6881"), nil)

	require.NoError(t, n.Observe(key(1), failed))
	require.NoError(t, n.ResolveEviction(key(1), [][]byte{failed.Id()}, pending))

	closest, err := n.Closest(key(1), testId(0x10), 10)
	require.NoError(t, err)
	require.Len(t, closest, 1)
	assert.Equal(t, pending.Id(), closest[0].Id())
}

func TestAnnouncePeers(t *testing.T) {
	n := newTestNode(t, DefaultOpts())

	a1 := addr("1.1.1.1:6881")
	a2 := addr("2.2.2.2:6881")

	n.Announce(key(1), a1)
	n.Announce(key(1), a2)

	assert.Equal(t, []netip.AddrPort{a1, a2}, n.Peers(key(1)))
	assert.Nil(t, n.Peers(key(2)))
}

func TestPutGetValue(t *testing.T) {
	n := newTestNode(t, DefaultOpts())

	val := values.Value{Id: testId(0x10), Token: []byte("tok"), V: []byte("payload")}
	require.NoError(t, n.PutValue(key(1), val))

	got, ok, err := n.GetValue(key(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, val, got)

	_, ok, err = n.GetValue(key(2))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatePersistsAcrossRestarts(t *testing.T) {
	opts := DefaultOpts()
	opts.NodeID = testId(0x00)
	opts.StatePath = filepath.Join(t.TempDir(), "state")

	var home Key
	copy(home[:], opts.NodeID)

	val := values.Value{Id: testId(0x10), Token: []byte("tok"), V: []byte("payload")}

	n1 := newTestNode(t, opts)
	require.NoError(t, n1.Start())
	require.NoError(t, n1.Observe(home, kbucket.NewPeer(testId(0x10), addr("1.1.1.1:6881"), []byte("t1"))))
	require.NoError(t, n1.Observe(home, kbucket.NewPeer(testId(0x11), addr("2.2.2.2:6881"), nil)))
	require.NoError(t, n1.PutValue(home, val))
	require.NoError(t, n1.Close())

	n2 := newTestNode(t, opts)
	require.NoError(t, n2.Start())

	closest, err := n2.Closest(home, testId(0x10), 10)
	require.NoError(t, err)
	require.Len(t, closest, 2)

	got, ok, err := n2.GetValue(home)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, val, got)

	require.NoError(t, n2.Close())
}
