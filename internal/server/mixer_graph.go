package server

import (
	"fmt"

	"github.com/mithro/gst-switch/internal/composite"
	"github.com/mithro/gst-switch/internal/pipelinecase"
)

// buildScalerString renders the Composite's scaler pipeline: composite_a/b
// rescaled to the current A/B geometry and republished as
// composite_a_scaled/b_scaled. ModeNone only needs the A side; the other
// three modes need both.
func buildScalerString(mode composite.Mode, a, b composite.Rect) string {
	g := &pipelinecase.Graph{}
	g.Chain(scaleChain("composite_a", "composite_a_scaled", a.W, a.H)...)
	if mode != composite.ModeNone {
		g.Chain(scaleChain("composite_b", "composite_b_scaled", b.W, b.H)...)
	}
	return g.Render()
}

func scaleChain(srcChannel, dstChannel string, w, h int) []pipelinecase.Node {
	return []pipelinecase.Node{
		{Factory: "intervideosrc", Props: []string{fmt.Sprintf("channel=%q", srcChannel)}},
		{Factory: "videoscale"},
		{Factory: "capsfilter", Props: []string{fmt.Sprintf("caps=\"video/x-raw,width=%d,height=%d\"", w, h)}},
		{Factory: "intervideosink", Props: []string{fmt.Sprintf("channel=%q", dstChannel)}},
	}
}

// buildMixerString renders the Composite's mixer pipeline: reads the
// scaled surfaces through a videomixer (named "mix" with its A/B sink pads
// positioned per mode's geometry), republishing to composite_out (UI) and
// optionally teeing to composite_video when recording is active.
func buildMixerString(mode composite.Mode, a, b composite.Rect, canvasW, canvasH int, recording bool) string {
	g := &pipelinecase.Graph{}

	g.Chain(pipelinecase.Node{Factory: "videomixer", Name: "mix", Props: []string{"background=1"}}, pipelinecase.Node{Factory: "tee", Name: "t"})

	g.Chain(
		pipelinecase.Node{Factory: "intervideosrc", Props: []string{"channel=\"composite_a_scaled\""}},
		pipelinecase.Node{Factory: "identity", Props: []string{fmt.Sprintf("xpos=%d", a.X), fmt.Sprintf("ypos=%d", a.Y)}},
		pipelinecase.Node{Factory: "mix."},
	)

	if mode != composite.ModeNone {
		g.Chain(
			pipelinecase.Node{Factory: "intervideosrc", Props: []string{"channel=\"composite_b_scaled\""}},
			pipelinecase.Node{
				Factory: "identity",
				Name:    "mix_b",
				Props:   []string{fmt.Sprintf("xpos=%d", b.X), fmt.Sprintf("ypos=%d", b.Y)},
			},
			pipelinecase.Node{Factory: "mix."},
		)
	}

	g.Chain(pipelinecase.Node{Factory: "t."}, pipelinecase.Node{Factory: "queue"}, pipelinecase.Node{Factory: "intervideosink", Props: []string{"channel=\"composite_out\""}})
	if recording {
		g.Chain(pipelinecase.Node{Factory: "t."}, pipelinecase.Node{Factory: "queue"}, pipelinecase.Node{Factory: "intervideosink", Props: []string{"channel=\"composite_video\""}})
	}

	return g.Render()
}
