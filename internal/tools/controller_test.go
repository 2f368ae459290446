package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/overlay"
)

var box = geometry.ToOverlay(geometry.Rect{X: 1, Y: 1, Width: 10, Height: 10}, 3000)

type fixture struct {
	layer   *overlay.Layer
	ctl     *Controller
	deleted []domain.Shape
}

func newFixture(t *testing.T, shapes ...domain.Shape) *fixture {
	t.Helper()
	f := &fixture{layer: overlay.NewLayer()}
	f.ctl = NewController(f.layer, func(s domain.Shape) { f.deleted = append(f.deleted, s) })
	f.layer.On(overlay.EventReady, func(domain.Shape) { f.ctl.Attach() })
	f.layer.SetShapes(shapes)
	f.layer.Attach()
	require.Equal(t, Pan, f.ctl.Mode())
	return f
}

func (f *fixture) listeners() (rearm, del int) {
	return f.layer.ListenerCount(overlay.EventCreate) +
			f.layer.ListenerCount(overlay.EventCancel) +
			f.layer.ListenerCount(overlay.EventUpdate),
		f.layer.ListenerCount(overlay.EventSelect)
}

func TestController_NotReady(t *testing.T) {
	ctl := NewController(overlay.NewLayer(), nil)
	assert.Equal(t, Uninitialized, ctl.Mode())
	assert.ErrorIs(t, ctl.SetMode(Draw), ErrNotReady)
	assert.ErrorIs(t, ctl.SetMode(Pan), ErrNotReady)
}

func TestController_ModesAreExclusive(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctl.SetMode(Draw))
	rearm, del := f.listeners()
	assert.Equal(t, 3, rearm)
	assert.Zero(t, del)
	assert.True(t, f.layer.DrawingEnabled())

	require.NoError(t, f.ctl.SetMode(Delete))
	rearm, del = f.listeners()
	assert.Zero(t, rearm)
	assert.Equal(t, 1, del)
	assert.False(t, f.layer.DrawingEnabled())

	require.NoError(t, f.ctl.SetMode(Draw))
	rearm, del = f.listeners()
	assert.Equal(t, 3, rearm)
	assert.Zero(t, del)

	// entering the same mode again does not stack listeners
	require.NoError(t, f.ctl.SetMode(Draw))
	rearm, _ = f.listeners()
	assert.Equal(t, 3, rearm)

	require.NoError(t, f.ctl.SetMode(Pan))
	rearm, del = f.listeners()
	assert.Zero(t, rearm)
	assert.Zero(t, del)
	assert.Zero(t, f.ctl.ListenerSets())
	assert.False(t, f.layer.DrawingEnabled())
}

func TestController_DrawRearmsAfterEveryCommit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.SetMode(Draw))

	for i := 0; i < 5; i++ {
		_, err := f.layer.Draw(box, "")
		require.NoError(t, err, "draw %d", i)
		assert.True(t, f.layer.DrawingEnabled(), "drawing re-armed after shape %d", i)
	}
	assert.Len(t, f.layer.Shapes(), 5)

	f.layer.Cancel()
	assert.True(t, f.layer.DrawingEnabled())

	_, err := f.layer.Edit(f.layer.Shapes()[0].ID, box)
	require.NoError(t, err)
	assert.True(t, f.layer.DrawingEnabled())
}

func TestController_DeleteRemovesSelection(t *testing.T) {
	f := newFixture(t, domain.Shape{ID: "db:1"}, domain.Shape{ID: "local-2"})
	require.NoError(t, f.ctl.SetMode(Delete))

	require.NoError(t, f.layer.Select("db:1"))

	require.Len(t, f.deleted, 1)
	assert.Equal(t, "db:1", f.deleted[0].ID)
	assert.Len(t, f.layer.Shapes(), 1)
}

func TestController_QueuedSelectAfterLeavingDelete(t *testing.T) {
	f := newFixture(t, domain.Shape{ID: "db:1"})
	require.NoError(t, f.ctl.SetMode(Delete))

	// the select is queued while the delete listener is still attached
	f.layer.Hold()
	require.NoError(t, f.layer.Select("db:1"))
	require.NoError(t, f.ctl.SetMode(Draw))
	f.layer.Flush()

	assert.Empty(t, f.deleted, "a select delivered after leaving delete mode must not delete")
	assert.Len(t, f.layer.Shapes(), 1)
}

func TestController_DrawDeleteDrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.SetMode(Draw))
	s, err := f.layer.Draw(box, "")
	require.NoError(t, err)

	require.NoError(t, f.ctl.SetMode(Delete))
	_, err = f.layer.Draw(box, "")
	assert.ErrorIs(t, err, overlay.ErrDrawingDisabled)
	require.NoError(t, f.layer.Select(s.ID))
	require.Len(t, f.deleted, 1)

	require.NoError(t, f.ctl.SetMode(Draw))
	s2, err := f.layer.Draw(box, "")
	require.NoError(t, err)
	// selecting in draw mode is harmless
	require.NoError(t, f.layer.Select(s2.ID))
	assert.Len(t, f.deleted, 1)
	assert.Len(t, f.layer.Shapes(), 1)
}

func TestController_Visibility(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.SetMode(Draw))

	f.ctl.SetVisible(false)
	assert.Equal(t, Pan, f.ctl.Mode())
	assert.False(t, f.ctl.Visible())
	assert.False(t, f.layer.Visible())
	assert.False(t, f.layer.DrawingEnabled())
	assert.Zero(t, f.ctl.ListenerSets())

	assert.ErrorIs(t, f.ctl.SetMode(Draw), ErrHidden)
	assert.ErrorIs(t, f.ctl.SetMode(Delete), ErrHidden)
	assert.NoError(t, f.ctl.SetMode(Pan))

	f.ctl.SetVisible(true)
	assert.True(t, f.layer.Visible())
	assert.Equal(t, Pan, f.ctl.Mode(), "showing again does not restore the previous tool")
	assert.NoError(t, f.ctl.SetMode(Delete))
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Pan, Draw, Delete} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("lasso")
	assert.Error(t, err)
}
