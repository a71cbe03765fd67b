package gc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Xarvie/sptscript/internal/value"
)

// stubRoots reports exactly the values it was constructed with, so tests can
// control reachability directly instead of driving a whole VM.
type stubRoots struct {
	roots []value.Value
}

func (s stubRoots) GCRoots(visit func(value.Value)) {
	for _, v := range s.roots {
		visit(v)
	}
}

func trackList(c *Collector, capHint int) value.Value {
	obj := value.NewList(capHint)
	c.Track(&obj.Object, int64(16+capHint*16))
	return value.FromObject(&obj.Object)
}

func TestCollectSweepsUnreachableObjects(t *testing.T) {
	roots := &stubRoots{}
	c := New(roots)

	kept := trackList(c, 0)
	trackList(c, 0) // unreachable from the start

	roots.roots = []value.Value{kept}
	c.Collect()

	require.Equal(t, int64(1), c.Freed)
	require.Equal(t, 1, c.Collections)
}

func TestCollectKeepsValuesReachableThroughNestedLists(t *testing.T) {
	roots := &stubRoots{}
	c := New(roots)

	inner := trackList(c, 0)
	outer := trackList(c, 1)
	outer.AsListObj().Elements = append(outer.AsListObj().Elements, inner)

	roots.roots = []value.Value{outer}
	c.Collect()

	require.Equal(t, int64(0), c.Freed)
}

func TestProtectKeepsValueAliveAcrossCollect(t *testing.T) {
	roots := &stubRoots{}
	c := New(roots)

	protected := trackList(c, 0)
	c.Protect(protected)
	c.Collect()

	require.Equal(t, int64(0), c.Freed)

	c.Unprotect(1)
	c.Collect()
	require.Equal(t, int64(1), c.Freed)
}

func TestShouldCollectCrossesThreshold(t *testing.T) {
	c := New(&stubRoots{})
	c.Configure(100, 2.0)
	require.False(t, c.ShouldCollect())

	trackList(c, 10) // estimate 16+160 = 176 > threshold 100
	require.True(t, c.ShouldCollect())
}

func TestCollectGrowsThresholdByGrowthFactor(t *testing.T) {
	c := New(&stubRoots{})
	c.Configure(100, 2.0)
	c.Collect()
	require.Equal(t, int64(200), c.threshold)
}
