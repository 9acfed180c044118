package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDs(t *testing.T) {
	client := ClientID("42", "9")
	assert.Equal(t, "c_42_s_9", client)
	assert.Equal(t, "c_42_s_9_d9", DeviceID(client, "9"))
}

func TestGraph_FinalizeSortsAndPublishes(t *testing.T) {
	var got *Snapshot
	g := NewGraph("run-1", SinkFunc(func(ctx context.Context, snap *Snapshot) error {
		got = snap
		return nil
	}))

	require.NoError(t, g.AddNode(&ClientNode{ID: "c_2_s_1"}))
	require.NoError(t, g.AddNode(&DeviceNode{ID: "c_2_s_1_d1", ParentID: "c_2_s_1", IPv4: []string{""}, IPv6: []string{""}}))
	require.NoError(t, g.AddNode(&ClientNode{ID: "c_1_s_5"}))
	require.NoError(t, g.AddNode(&DeviceNode{ID: "c_1_s_5_d5", ParentID: "c_1_s_5", IPv4: []string{"10.0.0.1"}, IPv6: []string{""}}))

	require.NoError(t, g.Finalize(context.Background()))
	require.NotNil(t, got)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Clients, 2)
	assert.Equal(t, "c_1_s_5", got.Clients[0].ID)
	assert.Equal(t, "c_1_s_5_d5", got.Devices[0].ID)
	assert.Same(t, got, g.Snapshot())
}

func TestGraph_IdenticalDuplicateIsIgnored(t *testing.T) {
	g := NewGraph("run")
	client := ClientNode{ID: "c_1_s_1", DisplayName: "Acme", Download: 5}
	device := DeviceNode{ID: "c_1_s_1_d1", ParentID: "c_1_s_1", IPv4: []string{"10.0.0.1"}, IPv6: []string{""}}

	for i := 0; i < 2; i++ {
		c, d := client, device
		require.NoError(t, g.AddNode(&c))
		require.NoError(t, g.AddNode(&d))
	}

	require.NoError(t, g.Finalize(context.Background()))
	assert.Len(t, g.Snapshot().Clients, 1)
	assert.Len(t, g.Snapshot().Devices, 1)
}

func TestGraph_ConflictingDuplicate(t *testing.T) {
	g := NewGraph("run")
	require.NoError(t, g.AddNode(&ClientNode{ID: "c_1_s_1", Download: 5}))
	require.NoError(t, g.AddNode(&DeviceNode{ID: "c_1_s_1_d1", ParentID: "c_1_s_1", IPv4: []string{"10.0.0.1"}}))

	assert.ErrorIs(t, g.AddNode(&ClientNode{ID: "c_1_s_1", Download: 10}), ErrDuplicateNode)
	assert.ErrorIs(t, g.AddNode(&DeviceNode{ID: "c_1_s_1_d1", ParentID: "c_1_s_1", IPv4: []string{"10.0.0.2"}}), ErrDuplicateNode)
	assert.ErrorIs(t, g.AddNode(&DeviceNode{ID: "c_1_s_1", ParentID: "c_1_s_1"}), ErrDuplicateNode, "ids are shared across kinds")
}

func TestGraph_OrphanDevice(t *testing.T) {
	g := NewGraph("run")
	require.NoError(t, g.AddNode(&DeviceNode{ID: "c_1_s_1_d1", ParentID: "c_1_s_1"}))

	err := g.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrOrphanDevice)
	assert.Nil(t, g.Snapshot())
}

func TestGraph_FinalizeOnce(t *testing.T) {
	calls := 0
	g := NewGraph("run", SinkFunc(func(ctx context.Context, snap *Snapshot) error {
		calls++
		return nil
	}))

	require.NoError(t, g.Finalize(context.Background()))
	assert.ErrorIs(t, g.Finalize(context.Background()), ErrFinalized)
	assert.ErrorIs(t, g.AddNode(&ClientNode{ID: "late"}), ErrFinalized)
	assert.Equal(t, 1, calls)
}

func TestGraph_SinkFailureStopsChain(t *testing.T) {
	boom := errors.New("boom")
	second := false
	g := NewGraph("run",
		SinkFunc(func(ctx context.Context, snap *Snapshot) error { return boom }),
		SinkFunc(func(ctx context.Context, snap *Snapshot) error { second = true; return nil }),
	)

	err := g.Finalize(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, second)
	assert.Nil(t, g.Snapshot())
}

func TestGraph_CopiesDeviceAddresses(t *testing.T) {
	g := NewGraph("run")
	ipv4 := []string{"10.0.0.1"}
	require.NoError(t, g.AddNode(&ClientNode{ID: "c"}))
	require.NoError(t, g.AddNode(&DeviceNode{ID: "d", ParentID: "c", IPv4: ipv4}))
	ipv4[0] = "changed"

	require.NoError(t, g.Finalize(context.Background()))
	assert.Equal(t, []string{"10.0.0.1"}, g.Snapshot().Devices[0].IPv4)
}
