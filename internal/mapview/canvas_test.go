package mapview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-ops/internal/models"
)

// recordingSurface keeps every command in order.
type recordingSurface struct {
	ops     []Op
	flushes int
	closed  int
}

func (r *recordingSurface) SetBaseLayer(tileURL, attribution string) error {
	r.ops = append(r.ops, Op{Op: "base", TileURL: tileURL})
	return nil
}

func (r *recordingSurface) SetView(center models.Coord, zoom int) error {
	r.ops = append(r.ops, Op{Op: "view", Zoom: zoom})
	return nil
}

func (r *recordingSurface) Draw(l Layer) error {
	r.ops = append(r.ops, Op{Op: "add", Key: l.Key})
	return nil
}

func (r *recordingSurface) Remove(key string) error {
	r.ops = append(r.ops, Op{Op: "remove", Key: key})
	return nil
}

func (r *recordingSurface) FitBounds(b Bounds, padding int) error {
	r.ops = append(r.ops, Op{Op: "fit", Padding: padding})
	return nil
}

func (r *recordingSurface) Flush() error { r.flushes++; return nil }
func (r *recordingSurface) Close() error { r.closed++; return nil }

func (r *recordingSurface) count(op string) int {
	n := 0
	for _, o := range r.ops {
		if o.Op == op {
			n++
		}
	}
	return n
}

func TestCanvasLifecycle(t *testing.T) {
	c := NewCanvas(CanvasOptions{TileURL: "tiles", Zoom: 7})
	assert.ErrorIs(t, c.Apply(Scene{}, Bounds{}), ErrNotMounted)

	s := &recordingSurface{}
	require.NoError(t, c.Mount(s))
	assert.ErrorIs(t, c.Mount(&recordingSurface{}), ErrAlreadyMounted)
	assert.Equal(t, 1, s.count("base"), "one base layer per canvas")

	require.NoError(t, c.Dispose())
	require.NoError(t, c.Dispose())
	assert.Equal(t, 1, s.closed)
	assert.ErrorIs(t, c.Apply(Scene{}, Bounds{}), ErrDisposed)
	assert.ErrorIs(t, c.Mount(s), ErrDisposed)
}

func TestCanvasApplyReplacesPreviousPass(t *testing.T) {
	trips := []models.Trip{trip("a", dakar, thies), trip("b", dakar, mbour)}
	st := NewViewState()
	s := &recordingSurface{}
	c := NewCanvas(CanvasOptions{})
	require.NoError(t, c.Mount(s))

	scene := Render(RenderInput{Trips: trips, State: st})
	b, _ := AutoFit(scene, Selection{})
	require.NoError(t, c.Apply(scene, b))
	require.NoError(t, c.Apply(scene, Bounds{}))

	assert.Equal(t, []string{"trip:a", "trip:b"}, c.Drawn())
	assert.Equal(t, 2, s.count("remove"))
	assert.Equal(t, 4, s.count("add"))
	assert.Equal(t, 1, s.count("fit"))
	assert.Equal(t, 3, s.flushes)

	// removals come before the new layers
	second := s.ops[len(s.ops)-4:]
	assert.Equal(t, []string{"remove", "remove", "add", "add"}, []string{second[0].Op, second[1].Op, second[2].Op, second[3].Op})
}

func TestBatchSurfaceSendsOneMessagePerFlush(t *testing.T) {
	sink := newChanSink()
	c := NewCanvas(CanvasOptions{TileURL: "tiles", Center: dakar, Zoom: 7})
	require.NoError(t, c.Mount(NewBatchSurface(sink)))

	msg := <-sink.ch
	assert.Equal(t, MsgDraw, msg.Type)
	require.Len(t, msg.Ops, 2)
	assert.Equal(t, "tiles", msg.Ops[0].TileURL)

	scene := Render(RenderInput{Trips: []models.Trip{trip("a", dakar, thies)}, State: NewViewState()})
	b, _ := AutoFit(scene, Selection{})
	require.NoError(t, c.Apply(scene, b))
	msg = <-sink.ch
	require.Len(t, msg.Ops, 2)
	assert.Equal(t, "add", msg.Ops[0].Op)
	assert.Equal(t, "fit", msg.Ops[1].Op)
	assert.Equal(t, FitPadding, msg.Ops[1].Padding)

	require.NoError(t, c.Dispose())
	assert.True(t, sink.isClosed())
}
