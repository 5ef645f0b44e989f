package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeometryNoneFillsCanvas(t *testing.T) {
	a, b := Geometry(ModeNone, 1280, 720)
	assert.Equal(t, Rect{0, 0, 1280, 720}, a)
	assert.Equal(t, Rect{}, b)
}

func TestGeometryPIPOnCanvas1280x720(t *testing.T) {
	a, b := Geometry(ModePIP, 1280, 720)
	assert.Equal(t, Rect{0, 0, 1280, 720}, a)
	assert.Equal(t, Rect{X: 102, Y: 58, W: 384, H: 216}, b)
}

func TestGeometryDualEqualOnCanvas1280x720(t *testing.T) {
	a, b := Geometry(ModeDualEqual, 1280, 720)
	assert.Equal(t, 640, a.W)
	assert.Equal(t, 360, a.H)
	assert.Equal(t, 640, b.W)
	assert.Equal(t, 360, b.H)
	assert.Equal(t, 0, a.X)
	assert.Equal(t, a.W+1, b.X)
}

func TestClampPIPMinEnforcesQuarterCanvas(t *testing.T) {
	r := clampPIPMin(Rect{X: 0, Y: 0, W: 10, H: 10}, 1280, 720)
	assert.Equal(t, 1280/4, r.W)
	assert.Equal(t, 720/3, r.H)
}

func TestNewDefaultsToModeNone(t *testing.T) {
	c := New(Config{CanvasW: 1280, CanvasH: 720}, testLogger())
	assert.Equal(t, ModeNone, c.Mode())
	assert.False(t, c.InTransition())
}
