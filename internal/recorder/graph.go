package recorder

import (
	"fmt"

	"github.com/mithro/gst-switch/internal/pipelinecase"
)

// recorderGraph builds the muxer pipeline: composite_video → JPEG encode,
// composite_audio → passthrough, both into a streamable matroska muxer
// tagged "gst-switch", teed to outputPath and a TCP server sink.
func recorderGraph(outputPath, sinkHost string, sinkPort int) *pipelinecase.Graph {
	g := &pipelinecase.Graph{}
	g.Chain(
		pipelinecase.Node{
			Factory: "matroskamux",
			Name:    "mux",
			Props: []string{
				"streamable=true",
				"min-index-interval=1000000000",
				fmt.Sprintf("writing-app=%q", "gst-switch"),
			},
		},
		pipelinecase.Node{Factory: "tee", Name: "t"},
	)
	g.Chain(
		pipelinecase.Node{Factory: "intervideosrc", Props: []string{"channel=\"composite_video\""}},
		pipelinecase.Node{Factory: "jpegenc"},
		pipelinecase.Node{Factory: "queue"},
		pipelinecase.Node{Factory: "mux."},
	)
	g.Chain(
		pipelinecase.Node{Factory: "interaudiosrc", Props: []string{"channel=\"composite_audio\""}},
		pipelinecase.Node{Factory: "queue"},
		pipelinecase.Node{Factory: "mux."},
	)
	g.Chain(
		pipelinecase.Node{Factory: "t."},
		pipelinecase.Node{Factory: "queue"},
		pipelinecase.Node{Factory: "filesink", Props: []string{fmt.Sprintf("location=%q", outputPath)}},
	)
	g.Chain(
		pipelinecase.Node{Factory: "t."},
		pipelinecase.Node{Factory: "queue"},
		pipelinecase.Node{
			Factory: "tcpserversink",
			Name:    "sink",
			Props:   []string{fmt.Sprintf("host=%q", sinkHost), fmt.Sprintf("port=%d", sinkPort)},
		},
	)
	return g
}
