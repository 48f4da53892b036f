package topology

import "github.com/edp1096/toy-circuit/pkg/device"

// Versioned holds a value together with the Topology Version it was computed at.
type Versioned[T any] struct {
	Value      T
	ComputedAt uint64
}

// ConnectivityCache memoizes per-component connectivity. An entry is recomputed only
// when the live version differs from the version it was computed at.
type ConnectivityCache struct {
	entries      map[string]Versioned[bool]
	computations int
}

func NewConnectivityCache() *ConnectivityCache {
	return &ConnectivityCache{entries: make(map[string]Versioned[bool])}
}

func (c *ConnectivityCache) Get(id string, version uint64, compute func() bool) bool {
	if e, ok := c.entries[id]; ok && e.ComputedAt == version {
		return e.Value
	}
	v := compute()
	c.computations++
	c.entries[id] = Versioned[bool]{Value: v, ComputedAt: version}
	return v
}

func (c *ConnectivityCache) Forget(id string) { delete(c.entries, id) }

// Computations counts cache misses.
func (c *ConnectivityCache) Computations() int { return c.computations }

type positionEntry struct {
	key    device.GeometryKey
	points []device.Point
}

// PositionCache memoizes world terminal positions per component, keyed by the
// component's own geometry, so moving one component never invalidates another.
// Returned slices are shared and must not be modified.
type PositionCache struct {
	entries      map[string]positionEntry
	computations int
}

func NewPositionCache() *PositionCache {
	return &PositionCache{entries: make(map[string]positionEntry)}
}

func (c *PositionCache) Positions(comp *device.Component) []device.Point {
	key := comp.GeometryKey()
	if e, ok := c.entries[comp.ID]; ok && e.key == key {
		return e.points
	}
	points := comp.WorldTerminals()
	c.computations++
	c.entries[comp.ID] = positionEntry{key: key, points: points}
	return points
}

func (c *PositionCache) Forget(id string) { delete(c.entries, id) }

func (c *PositionCache) Computations() int { return c.computations }
