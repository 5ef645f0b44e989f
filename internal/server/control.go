package server

import (
	"context"
	"fmt"

	"github.com/mithro/gst-switch/internal/composite"
	"github.com/mithro/gst-switch/internal/pipelinecase"
)

// GetComposePort returns the sink_port currently feeding composite_a (the
// primary/A channel), or 0 if none is active.
func (d *Dispatcher) GetComposePort() int {
	d.roleMu.Lock()
	defer d.roleMu.Unlock()
	return d.activeA
}

// GetAudioPort returns the sink_port currently feeding the active audio
// channel, or 0 if none is active.
func (d *Dispatcher) GetAudioPort() int {
	d.roleMu.Lock()
	defer d.roleMu.Unlock()
	return d.activeAud
}

// GetEncodePort returns the sink_port of the B channel, or 0 if none.
func (d *Dispatcher) GetEncodePort() int {
	d.roleMu.Lock()
	defer d.roleMu.Unlock()
	return d.activeB
}

// GetPreviewPorts lists every currently active preview/branch case.
func (d *Dispatcher) GetPreviewPorts() []PreviewPort {
	d.casesMu.Lock()
	defer d.casesMu.Unlock()

	out := make([]PreviewPort, 0, len(d.cases))
	for _, c := range d.cases {
		if c.Type == pipelinecase.Preview || c.Type.IsBranch() {
			out = append(out, PreviewPort{Port: c.Port, ServeType: c.Type.ServeType(), CaseType: c.Type})
		}
	}
	return out
}

// SetCompositeMode forwards mode to the Composite, returning whether it was
// accepted (false if a transition was already pending).
func (d *Dispatcher) SetCompositeMode(ctx context.Context, mode composite.Mode) bool {
	return d.comp.SetMode(ctx, mode)
}

// AdjustPIP applies the deltas dx,dy,dw,dh to the current PIP rectangle,
// clamping via the Composite's minimum-PIP rules.
func (d *Dispatcher) AdjustPIP(dx, dy, dw, dh int) {
	b := d.comp.RectB()
	d.comp.AdjustPIP(b.X+dx, b.Y+dy, b.W+dw, b.H+dh)
}

// ClickVideo is reserved for future face-region switching; currently a
// no-op.
func (d *Dispatcher) ClickVideo(x, y, frameW, frameH int) {}

// Switch swaps the case whose sink_port == port into the A, B, or
// active-audio role (channel ∈ {'A','B','a'}), rewiring the affected
// COMPOSITE_* cases so the Composite reads the new input. It returns false
// if no case is registered at port or the channel letter is unrecognized.
func (d *Dispatcher) Switch(ctx context.Context, channel byte, port int) bool {
	d.casesMu.Lock()
	target, ok := d.cases[port]
	d.casesMu.Unlock()
	if !ok {
		return false
	}

	switch channel {
	case 'A':
		return d.switchVideoRole(ctx, &d.activeA, port, target, pipelinecase.CompositeA)
	case 'B':
		return d.switchVideoRole(ctx, &d.activeB, port, target, pipelinecase.CompositeB)
	case 'a':
		return d.switchVideoRole(ctx, &d.activeAud, port, target, pipelinecase.CompositeAudio)
	default:
		return false
	}
}

// switchVideoRole rebuilds (or creates) the COMPOSITE_* case reading from
// port's input Surface, stopping and discarding whatever case previously
// held the role.
func (d *Dispatcher) switchVideoRole(ctx context.Context, active *int, port int, target *pipelinecase.Case, role pipelinecase.Type) bool {
	d.roleMu.Lock()
	if *active == port {
		d.roleMu.Unlock()
		return true // idempotent: already in this role
	}
	previous := *active
	*active = port
	d.roleMu.Unlock()

	if previous != 0 {
		d.casesMu.Lock()
		prevCase, ok := d.cases[roleCaseKey(role, previous)]
		d.casesMu.Unlock()
		if ok {
			prevCase.Worker().Stop(false)
			d.casesMu.Lock()
			delete(d.cases, roleCaseKey(role, previous))
			d.casesMu.Unlock()
		}
	}

	name := fmt.Sprintf("%s-%d", role, port)
	c := pipelinecase.New(name, role, port, target.Caps, d.log)
	d.casesMu.Lock()
	d.cases[roleCaseKey(role, port)] = c
	d.casesMu.Unlock()

	if err := c.Worker().Start(ctx); err != nil {
		d.log.Error().Err(err).Str("role", role.String()).Int("port", port).Msg("switch: failed to start composite-side case")
		return false
	}
	return true
}

// modeFromInt maps the wire-level mode integer (as sent over the NATS
// control channel) to a composite.Mode, defaulting to
// ModeNone for anything out of range.
func modeFromInt(v int) composite.Mode {
	switch composite.Mode(v) {
	case composite.ModeNone, composite.ModePIP, composite.ModeDualPreview, composite.ModeDualEqual:
		return composite.Mode(v)
	default:
		return composite.ModeNone
	}
}

// roleCaseKey namespaces the composite-side case table entries out of the
// sink_port keyspace so a COMPOSITE_A case for port 5 never collides with
// the INPUT_VIDEO case that also lives at key 5.
func roleCaseKey(role pipelinecase.Type, port int) int {
	return -(int(role)*1_000_000 + port)
}

// NewRecord forces a recording cut: stops the current Recorder with EOS and
// starts a new one, which computes a fresh filename.
func (d *Dispatcher) NewRecord(ctx context.Context) error {
	d.recorderMu.Lock()
	defer d.recorderMu.Unlock()

	if d.rec != nil {
		d.rec.Stop()
	}
	if d.cfg.RecordTemplate == "" {
		return fmt.Errorf("server: no --record template configured")
	}
	d.rec = newRecorderFromConfig(d.cfg, d.log)
	return d.rec.Start(ctx)
}
