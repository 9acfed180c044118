package topology

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrFinalized is returned when a graph is used after Finalize.
	ErrFinalized = errors.New("topology: graph already finalized")
	// ErrDuplicateNode is returned when two nodes share an id.
	ErrDuplicateNode = errors.New("topology: duplicate node id")
	// ErrOrphanDevice is returned when a device references an unknown client.
	ErrOrphanDevice = errors.New("topology: device parent not found")
)

// Emitter receives the nodes of one run. Finalize is called exactly once,
// after every node was added.
type Emitter interface {
	AddNode(n Node) error
	Finalize(ctx context.Context) error
}

// Snapshot is the immutable result of a finalized graph, sorted by id.
type Snapshot struct {
	RunID   string
	Clients []ClientNode
	Devices []DeviceNode
}

// Sink consumes a finalized snapshot.
type Sink interface {
	Publish(ctx context.Context, snap *Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap *Snapshot) error

func (f SinkFunc) Publish(ctx context.Context, snap *Snapshot) error { return f(ctx, snap) }

// Graph is an in-memory Emitter that passes its snapshot to sinks in order.
// The first failing sink aborts Finalize.
type Graph struct {
	runID string
	sinks []Sink

	mu        sync.Mutex
	clients   map[string]ClientNode
	devices   map[string]DeviceNode
	finalized bool
	snapshot  *Snapshot
}

// NewGraph creates an empty graph for one run.
func NewGraph(runID string, sinks ...Sink) *Graph {
	return &Graph{
		runID:   runID,
		sinks:   sinks,
		clients: make(map[string]ClientNode),
		devices: make(map[string]DeviceNode),
	}
}

// AddNode stores a node. Nodes form a set keyed by id: re-adding an identical
// node is a no-op, a different node under a known id is ErrDuplicateNode.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.finalized {
		return ErrFinalized
	}
	id := n.NodeID()
	existingClient, isClient := g.clients[id]
	existingDevice, isDevice := g.devices[id]

	switch node := n.(type) {
	case *ClientNode:
		if isClient && existingClient == *node {
			return nil
		}
		if isClient || isDevice {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
		}
		g.clients[id] = *node
	case *DeviceNode:
		if isDevice && existingDevice.equal(node) {
			return nil
		}
		if isClient || isDevice {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
		}
		d := *node
		d.IPv4 = append([]string(nil), node.IPv4...)
		d.IPv6 = append([]string(nil), node.IPv6...)
		g.devices[id] = d
	default:
		return fmt.Errorf("topology: unsupported node type %T", n)
	}
	return nil
}

// Finalize validates parent links, builds the snapshot and publishes it.
func (g *Graph) Finalize(ctx context.Context) error {
	g.mu.Lock()
	if g.finalized {
		g.mu.Unlock()
		return ErrFinalized
	}
	g.finalized = true
	snap, err := g.build()
	g.mu.Unlock()
	if err != nil {
		return err
	}

	for _, sink := range g.sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			return fmt.Errorf("publish topology: %w", err)
		}
	}

	g.mu.Lock()
	g.snapshot = snap
	g.mu.Unlock()
	return nil
}

// Snapshot returns the published snapshot, or nil before a successful Finalize.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot
}

func (g *Graph) build() (*Snapshot, error) {
	snap := &Snapshot{
		RunID:   g.runID,
		Clients: make([]ClientNode, 0, len(g.clients)),
		Devices: make([]DeviceNode, 0, len(g.devices)),
	}
	for _, c := range g.clients {
		snap.Clients = append(snap.Clients, c)
	}
	for _, d := range g.devices {
		if _, ok := g.clients[d.ParentID]; !ok {
			return nil, fmt.Errorf("%w: device %s references %s", ErrOrphanDevice, d.ID, d.ParentID)
		}
		snap.Devices = append(snap.Devices, d)
	}
	sort.Slice(snap.Clients, func(i, j int) bool { return snap.Clients[i].ID < snap.Clients[j].ID })
	sort.Slice(snap.Devices, func(i, j int) bool { return snap.Devices[i].ID < snap.Devices[j].ID })
	return snap, nil
}
