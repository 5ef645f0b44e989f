// graph.go implements a typed pipeline-graph builder in place of raw string
// concatenation: nodes with typed properties, rendered to GStreamer's
// gst-launch DSL. The element factories and properties are GStreamer names
// chosen by each caller (this file, recorder/graph.go and
// server/mixer_graph.go).
package pipelinecase

import (
	"fmt"
	"strings"

	"github.com/mithro/gst-switch/internal/format"
)

// Node is one element in a gst-launch pipeline: "factory name=n prop=val ...".
type Node struct {
	Factory string
	Name    string
	Props   []string // pre-formatted "key=value" strings
}

func (n Node) render() string {
	var b strings.Builder
	b.WriteString(n.Factory)
	if n.Name != "" {
		fmt.Fprintf(&b, " name=%s", n.Name)
	}
	for _, p := range n.Props {
		b.WriteString(" ")
		b.WriteString(p)
	}
	return b.String()
}

// Graph is a linear chain of Nodes joined by "!", GStreamer's pad-link
// operator, optionally with branch chains for tee-fanout pipelines.
type Graph struct {
	chains [][]Node
}

// Chain starts (or adds) a linear sequence of nodes in the graph. Multiple
// calls produce sibling branches separated by whitespace, which is how
// gst-launch expresses multiple independent pipeline fragments sharing
// named elements (e.g. a tee's two downstream branches).
func (g *Graph) Chain(nodes ...Node) *Graph {
	g.chains = append(g.chains, nodes)
	return g
}

// Render produces the gst-launch description string.
func (g *Graph) Render() string {
	parts := make([]string, 0, len(g.chains))
	for _, chain := range g.chains {
		nodeStrs := make([]string, 0, len(chain))
		for _, n := range chain {
			nodeStrs = append(nodeStrs, n.render())
		}
		parts = append(parts, strings.Join(nodeStrs, " ! "))
	}
	return strings.Join(parts, " ")
}

func prop(key, value string) string { return fmt.Sprintf("%s=%s", key, value) }
func propInt(key string, v int) string { return fmt.Sprintf("%s=%d", key, v) }

func capsFilterNode(caps format.Caps) Node {
	return Node{Factory: "capsfilter", Props: []string{prop("caps", fmt.Sprintf("\"%s\"", caps.String()))}}
}

// inputVideoGraph: byte-stream source (appsrc, filled by the caller after
// Prepare) → depay → writes to intervideosink channel input_<port>.
func inputVideoGraph(port int) *Graph {
	g := &Graph{}
	g.Chain(
		Node{Factory: "appsrc", Name: "source", Props: []string{prop("format", "time"), prop("is-live", "true")}},
		Node{Factory: "gdpdepay"},
		Node{Factory: "intervideosink", Props: []string{prop("channel", quote(channelName("input", port)))}},
	)
	return g
}

// inputAudioGraph: byte-stream source → depay/parse s16le @48kHz → writes
// to interaudiosink channel input_<port>.
func inputAudioGraph(port int) *Graph {
	g := &Graph{}
	g.Chain(
		Node{Factory: "appsrc", Name: "source", Props: []string{prop("format", "time"), prop("is-live", "true")}},
		Node{Factory: "gdpdepay"},
		Node{Factory: "rawaudioparse", Props: []string{prop("format", "pcm"), prop("pcm-format", "s16le"), propInt("sample-rate", 48000)}},
		Node{Factory: "interaudiosink", Props: []string{prop("channel", quote(channelName("input", port)))}},
	)
	return g
}

// previewGraph: reads Surface input_<port>, enforces caps, writes to
// Surface branch_<port>.
func previewGraph(port int, caps format.Caps) *Graph {
	g := &Graph{}
	g.Chain(
		Node{Factory: "intervideosrc", Props: []string{prop("channel", quote(channelName("input", port)))}},
		capsFilterNode(caps),
		Node{Factory: "intervideosink", Props: []string{prop("channel", quote(channelName("branch", port)))}},
	)
	return g
}

// compositeSideGraph: reads Surface input_<port>, tees to branch_<port> and
// dest (composite_a or composite_b).
func compositeSideGraph(port int, dest string) *Graph {
	g := &Graph{}
	g.Chain(
		Node{Factory: "intervideosrc", Props: []string{prop("channel", quote(channelName("input", port)))}},
		Node{Factory: "tee", Name: "t"},
	)
	g.Chain(Node{Factory: "t."}, Node{Factory: "queue"}, Node{Factory: "intervideosink", Props: []string{prop("channel", quote(channelName("branch", port)))}})
	g.Chain(Node{Factory: "t."}, Node{Factory: "queue"}, Node{Factory: "intervideosink", Props: []string{prop("channel", quote(dest))}})
	return g
}

// compositeAudioGraph: reads an audio input Surface, tees to
// branch_<port> and composite_audio.
func compositeAudioGraph(port int) *Graph {
	g := &Graph{}
	g.Chain(
		Node{Factory: "interaudiosrc", Props: []string{prop("channel", quote(channelName("input", port)))}},
		Node{Factory: "tee", Name: "t"},
	)
	g.Chain(Node{Factory: "t."}, Node{Factory: "queue"}, Node{Factory: "interaudiosink", Props: []string{prop("channel", quote(channelName("branch", port)))}})
	g.Chain(Node{Factory: "t."}, Node{Factory: "queue"}, Node{Factory: "interaudiosink", Props: []string{prop("channel", quote("composite_audio"))}})
	return g
}

// branchGraph: reads Surface channel, pays, serves over TCP at addr.
func branchGraph(channel, addr string) *Graph {
	host, port := splitHostPort(addr)
	g := &Graph{}
	g.Chain(
		Node{Factory: "intervideosrc", Name: "intersrc", Props: []string{prop("channel", quote(channel))}},
		Node{Factory: "h264parse"},
		Node{Factory: "rtph264pay"},
		Node{Factory: "tcpserversink", Name: "sink", Props: []string{prop("host", quote(host)), propInt("port", port)}},
	)
	return g
}

func channelName(role string, port int) string { return fmt.Sprintf("%s_%d", role, port) }
func quote(s string) string                     { return "\"" + s + "\"" }

func splitHostPort(addr string) (string, int) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "0.0.0.0", 0
	}
	host := addr[:idx]
	if host == "" {
		host = "0.0.0.0"
	}
	var port int
	fmt.Sscanf(addr[idx+1:], "%d", &port)
	return host, port
}
