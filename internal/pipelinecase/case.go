// Package pipelinecase implements Case: a Worker specialized by case type,
// producing the declarative pipeline string for one role (input, preview,
// branch, composite side). Grounded on the ten case types of gst-switch's
// original tools/server/gstcase.c, with pipeline strings rendered through
// graph.go's typed builder instead of ad-hoc string concatenation.
package pipelinecase

import (
	"fmt"
	"io"
	"syscall"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/rs/zerolog"

	"github.com/mithro/gst-switch/internal/format"
	"github.com/mithro/gst-switch/internal/worker"
)

// Type identifies a Case's role in the pipeline graph.
type Type int

const (
	InputVideo Type = iota
	InputAudio
	Preview
	CompositeA
	CompositeB
	CompositeAudio
	BranchA
	BranchB
	BranchAudio
	BranchPreview
)

func (t Type) String() string {
	switch t {
	case InputVideo:
		return "INPUT_VIDEO"
	case InputAudio:
		return "INPUT_AUDIO"
	case Preview:
		return "PREVIEW"
	case CompositeA:
		return "COMPOSITE_A"
	case CompositeB:
		return "COMPOSITE_B"
	case CompositeAudio:
		return "COMPOSITE_AUDIO"
	case BranchA:
		return "BRANCH_A"
	case BranchB:
		return "BRANCH_B"
	case BranchAudio:
		return "BRANCH_AUDIO"
	case BranchPreview:
		return "BRANCH_PREVIEW"
	default:
		return "UNKNOWN"
	}
}

// ServeType identifies whether a Case exposes a TCP server element.
type ServeType int

const (
	ServeNothing ServeType = iota
	ServeVideoStream
	ServeAudioStream
)

// IsBranch reports whether t is one of the four outbound-serving types.
func (t Type) IsBranch() bool {
	switch t {
	case BranchA, BranchB, BranchAudio, BranchPreview:
		return true
	default:
		return false
	}
}

// IsInput reports whether t ingests a byte-stream directly (as opposed to
// reading from a Surface).
func (t Type) IsInput() bool {
	return t == InputVideo || t == InputAudio
}

// ServeType returns the serve_type for t.
func (t Type) ServeType() ServeType {
	switch t {
	case BranchA, BranchB, BranchPreview:
		return ServeVideoStream
	case BranchAudio:
		return ServeAudioStream
	default:
		return ServeNothing
	}
}

// Case is a Worker specialized by Type; its sole extension point is
// PipelineString, derived from Type and the attributes below.
type Case struct {
	worker.BaseLifecycle

	Type     Type
	Port     int // the sink_port this case owns, or 0
	Caps     format.Caps
	SinkAddr string // "host:port" this Case's TCP sink should bind, if ServeType != ServeNothing

	source io.Reader // owned byte-stream, set for input cases
	log    zerolog.Logger

	w *worker.Worker
}

// New constructs a Case of the given type bound to port (0 if none).
func New(name string, t Type, port int, caps format.Caps, log zerolog.Logger) *Case {
	c := &Case{Type: t, Port: port, Caps: caps, log: log.With().Str("case", name).Logger()}
	c.w = worker.New(name, c, log)
	return c
}

// Worker returns the underlying generic Worker.
func (c *Case) Worker() *worker.Worker { return c.w }

// SetSource installs the byte-stream an input Case reads from. Must be
// called before Start; Prepare installs it on the pipeline's "source"
// element.
func (c *Case) SetSource(r io.Reader) { c.source = r }

// CloseSource closes the input byte-stream, if it supports it and the
// case is input-typed, unblocking pumpSource's Read so the pump goroutine
// exits instead of leaking when the worker is stopped out from under it.
func (c *Case) CloseSource() {
	if !c.Type.IsInput() {
		return
	}
	if closer, ok := c.source.(io.Closer); ok {
		closer.Close()
	}
}

// Prepare wires the pipeline's boundary elements once it exists but
// before it starts: input cases get a goroutine pumping their
// byte-stream into the "source" appsrc, and branch cases get
// client-added/client-removed callbacks on their tcpserversink.
func (c *Case) Prepare(w *worker.Worker) error {
	if c.Type.IsInput() {
		if c.source == nil {
			return fmt.Errorf("case %s: input case has no byte-stream source installed", c.Type)
		}
		elem, err := w.GetElement("source")
		if err != nil {
			return fmt.Errorf("case %s: get source element: %w", c.Type, err)
		}
		go c.pumpSource(app.SrcFromElement(elem))
		return nil
	}

	if c.Type.IsBranch() {
		elem, err := w.GetElement("sink")
		if err != nil {
			return fmt.Errorf("case %s: get sink element: %w", c.Type, err)
		}
		c.wireClientCallbacks(elem)
	}

	return nil
}

// pumpSource reads c.source in fixed-size chunks and pushes each chunk
// into src as a buffer, until the source returns an error (including
// EOF), at which point it signals end-of-stream and closes the source if
// it supports it.
func (c *Case) pumpSource(src *app.Source) {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.source.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if ret := src.PushBuffer(gst.NewBufferFromBytes(chunk)); ret != gst.FlowOK {
				c.log.Warn().Interface("flow-return", ret).Msg("appsrc push failed, stopping pump")
				break
			}
		}
		if err != nil {
			if err != io.EOF {
				c.log.Warn().Err(err).Msg("input stream read error, ending pump")
			}
			break
		}
	}
	src.EndStream()
	if closer, ok := c.source.(io.Closer); ok {
		closer.Close()
	}
}

// wireClientCallbacks connects tcpserversink's client-added/client-removed
// signals so a departing client's socket is closed by us: tcpserversink
// hands over the raw fd but does not close it on client-removed, which
// would otherwise leak one file descriptor per disconnect.
func (c *Case) wireClientCallbacks(sink *gst.Element) {
	sink.Connect("client-added", func(_ *gst.Element, fd int) {
		c.log.Debug().Int("fd", fd).Msg("branch client connected")
	})
	sink.Connect("client-removed", func(_ *gst.Element, fd int, status int) {
		c.log.Debug().Int("fd", fd).Int("status", status).Msg("branch client disconnected")
		syscall.Close(fd)
	})
}

// PipelineString renders c's gst-launch-syntax description for c's role.
func (c *Case) PipelineString() (string, error) {
	switch c.Type {
	case InputVideo:
		return inputVideoGraph(c.Port).Render(), nil
	case InputAudio:
		return inputAudioGraph(c.Port).Render(), nil
	case Preview:
		return previewGraph(c.Port, c.Caps).Render(), nil
	case CompositeA:
		return compositeSideGraph(c.Port, "composite_a").Render(), nil
	case CompositeB:
		return compositeSideGraph(c.Port, "composite_b").Render(), nil
	case CompositeAudio:
		return compositeAudioGraph(c.Port).Render(), nil
	case BranchA:
		return branchGraph("branch_"+portName(c.Port), c.SinkAddr).Render(), nil
	case BranchB:
		return branchGraph("branch_"+portName(c.Port), c.SinkAddr).Render(), nil
	case BranchAudio:
		return branchGraph("branch_"+portName(c.Port), c.SinkAddr).Render(), nil
	case BranchPreview:
		return branchGraph("branch_"+portName(c.Port), c.SinkAddr).Render(), nil
	default:
		return "", fmt.Errorf("unknown case type %v", c.Type)
	}
}

func portName(port int) string {
	return fmt.Sprintf("%d", port)
}
