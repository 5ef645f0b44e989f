package server

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithro/gst-switch/internal/config"
	"github.com/mithro/gst-switch/internal/pipelinecase"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := &config.ServerConfig{
		VideoInputPort: 0,
		AudioInputPort: 0,
		MinSinkPort:    5000,
		MaxSinkPort:    5002,
		VideoCaps:      "debug",
	}
	return New(cfg, nil, testLogger())
}

func TestAllocPortStaysInRangeAndSkipsUsed(t *testing.T) {
	d := testDispatcher(t)

	first, err := d.allocPort()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 5000)
	assert.LessOrEqual(t, first, 5002)

	d.casesMu.Lock()
	d.cases[first] = pipelinecase.New("reserved", pipelinecase.InputVideo, first, pipelineTestCaps(t), testLogger())
	d.casesMu.Unlock()

	for i := 0; i < 2; i++ {
		p, err := d.allocPort()
		require.NoError(t, err)
		assert.NotEqual(t, first, p)
	}
}

func TestAllocPortExhaustionErrors(t *testing.T) {
	cfg := &config.ServerConfig{MinSinkPort: 9000, MaxSinkPort: 9000, VideoCaps: "debug"}
	d := New(cfg, nil, testLogger())

	p, err := d.allocPort()
	require.NoError(t, err)

	d.casesMu.Lock()
	d.cases[p] = pipelinecase.New("only", pipelinecase.InputVideo, p, pipelineTestCaps(t), testLogger())
	d.casesMu.Unlock()

	_, err = d.allocPort()
	assert.Error(t, err)
}

func TestGetPreviewPortsFiltersToPreviewAndBranchCases(t *testing.T) {
	d := testDispatcher(t)
	caps := pipelineTestCaps(t)

	d.casesMu.Lock()
	d.cases[5000] = pipelinecase.New("input", pipelinecase.InputVideo, 5000, caps, testLogger())
	d.cases[5001] = pipelinecase.New("preview", pipelinecase.Preview, 5001, caps, testLogger())
	d.cases[5002] = pipelinecase.New("branch", pipelinecase.BranchA, 5002, caps, testLogger())
	d.casesMu.Unlock()

	got := d.GetPreviewPorts()
	assert.Len(t, got, 2)
}

func TestModeFromIntRejectsOutOfRange(t *testing.T) {
	assert.Equal(t, "NONE", modeFromInt(99).String())
}

func TestClickVideoIsANoOp(t *testing.T) {
	d := testDispatcher(t)
	assert.NotPanics(t, func() { d.ClickVideo(1, 2, 640, 480) })
}
