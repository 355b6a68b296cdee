package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/testutil"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(zaptest.NewLogger(t))
}

func registerClient(t *testing.T, r *Registry) (string, *testutil.CaptureConn) {
	t.Helper()
	raw := testutil.NewCaptureConn()
	id := r.Register(NewConn(raw, 0), "203.0.113.9", 40001)
	return id, raw
}

func TestRegisterIssuesMonotonicIdentities(t *testing.T) {
	r := newTestRegistry(t)
	id1, _ := registerClient(t, r)
	id2, _ := registerClient(t, r)

	assert.Equal(t, "client_1", id1)
	assert.Equal(t, "client_2", id2)
	assert.Equal(t, 2, r.Count())
}

func TestRemoveClosesConnAndIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	id, raw := registerClient(t, r)

	r.Remove(id)
	assert.True(t, raw.Closed())
	assert.False(t, r.Contains(id))

	r.Remove(id) // second removal is a no-op
	assert.Equal(t, 0, r.Count())
}

func TestIdentitiesNeverReused(t *testing.T) {
	r := newTestRegistry(t)
	id1, _ := registerClient(t, r)
	r.Remove(id1)

	id2, _ := registerClient(t, r)
	assert.NotEqual(t, id1, id2)
}

func TestMetadataSettersIgnoreUnknownIdentity(t *testing.T) {
	r := newTestRegistry(t)

	r.Touch("client_99")
	r.SetName("client_99", "ghost")
	r.SetLatency("client_99", 42)
	r.SetPosition("client_99", protocol.Vector3{X: 1})
	r.SetDatagramAddr("client_99", &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5})

	assert.Equal(t, 0, r.Count())
}

func TestDatagramAddrBinding(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := registerClient(t, r)

	_, ok := r.DatagramAddr(id)
	assert.False(t, ok, "no datagram address before first datagram")

	addr := &net.UDPAddr{IP: net.IPv4(198, 51, 100, 7), Port: 7778}
	r.SetDatagramAddr(id, addr)

	got, ok := r.DatagramAddr(id)
	require.True(t, ok)
	assert.Equal(t, addr.String(), got.String())
}

func TestSnapshotIsACopyInRegistrationOrder(t *testing.T) {
	r := newTestRegistry(t)
	id1, _ := registerClient(t, r)
	id2, _ := registerClient(t, r)
	r.SetName(id1, "Ayrton")
	r.SetPosition(id2, protocol.Vector3{X: 3, Y: -2, Z: 0.8})

	views := r.Snapshot()
	require.Len(t, views, 2)
	assert.Equal(t, id1, views[0].ID)
	assert.Equal(t, id2, views[1].ID)
	assert.Equal(t, "Ayrton", views[0].Name)

	// Mutating the copy must not leak into the registry.
	views[1].Position.X = 999
	again := r.Snapshot()
	assert.Equal(t, 3.0, again[1].Position.X)
}

func TestStaleDetection(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	idStale, _ := registerClient(t, r)
	idFresh, _ := registerClient(t, r)

	// Only the fresh client keeps heartbeating.
	r.now = func() time.Time { return base.Add(61 * time.Second) }
	r.Touch(idFresh)

	stale := r.Stale(time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, idStale, stale[0])
}

func TestTouchRefreshesLastSeen(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }
	id, _ := registerClient(t, r)

	r.now = func() time.Time { return base.Add(59 * time.Second) }
	r.Touch(id)
	r.now = func() time.Time { return base.Add(90 * time.Second) }

	assert.Empty(t, r.Stale(time.Minute))
}
