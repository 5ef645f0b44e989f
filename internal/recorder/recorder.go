// Package recorder implements the Recorder: a Worker that muxes
// composite_video and composite_audio into a single media file, teed to a
// TCP server sink for remote monitoring. It owns filename templating with
// strftime-style expansion and collision-suffix resolution.
//
// Grounded on the filesystem and muxing shape of
// helix/api/pkg/desktop/recording.go (directory creation, file output,
// muxer invocation), generalized from its hardcoded /tmp path to the
// configured template gst-switch's original tools/server/gstrecord.c
// expands via strftime.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mithro/gst-switch/internal/worker"
)

// Config holds the Recorder's strftime-style filename template (e.g.
// "rec-%Y%m%d.mkv") and the host/port its TCP server sink binds.
type Config struct {
	Template string
	SinkPort int
	SinkHost string
}

// Recorder is a Worker that muxes composite_video/composite_audio to a
// file (and tees to a TCP sink), resolving its output path at each start.
type Recorder struct {
	worker.BaseLifecycle

	log    zerolog.Logger
	cfg    Config
	w      *worker.Worker
	nowFn  func() time.Time

	resolvedPath string
	cutID        string // identifies the current recording cut, grounded on recording.go's "rec_"+uuid short-ID scheme
}

// New constructs a Recorder from cfg. now, if nil, defaults to time.Now;
// tests supply a fixed clock to make filename resolution deterministic.
func New(cfg Config, log zerolog.Logger, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	r := &Recorder{log: log.With().Str("component", "recorder").Logger(), cfg: cfg, nowFn: now}
	r.w = worker.New("recorder", r, log)
	r.w.SendEOSOnStop = true
	return r
}

// Worker returns the underlying generic Worker.
func (r *Recorder) Worker() *worker.Worker { return r.w }

// Start resolves the output path and starts the muxer pipeline.
func (r *Recorder) Start(ctx context.Context) error {
	path, err := ResolvePath(r.cfg.Template, r.nowFn())
	if err != nil {
		return fmt.Errorf("recorder: resolve path: %w", err)
	}
	r.resolvedPath = path
	r.cutID = "rec_" + uuid.New().String()[:8]
	return r.w.Start(ctx)
}

// CutID identifies the current (or most recent) recording cut, for
// correlating log lines and status responses with a specific file.
func (r *Recorder) CutID() string { return r.cutID }

// Stop ends the current recording cleanly via EOS (SendEOSOnStop is set),
// so the muxer finalizes the file before the pipeline tears down.
func (r *Recorder) Stop() { r.w.Stop(false) }

// OutputPath returns the path the current (or most recent) recording was
// written to.
func (r *Recorder) OutputPath() string { return r.resolvedPath }

// PipelineString implements worker.Lifecycle.
func (r *Recorder) PipelineString() (string, error) {
	if r.resolvedPath == "" {
		return "", fmt.Errorf("recorder: no output path resolved; call Start via Recorder, not the raw Worker")
	}
	return recorderGraph(r.resolvedPath, r.cfg.SinkHost, r.cfg.SinkPort).Render(), nil
}

// ResolvePath expands template's strftime-style fields against t, creates
// the result's parent directory (mkdir -p, mode 0700), and appends a
// ".000".."999" collision suffix if the expanded path already exists. It
// aborts past ".999".
func ResolvePath(template string, t time.Time) (string, error) {
	expanded := expandStrftime(template, t)

	dir := filepath.Dir(expanded)
	if dir != "." && dir != "/" {
		// Directory-creation failures are ignored here; if the directory is
		// genuinely unwritable, the muxer's filesink surfaces the real error
		// when it tries to open the path.
		_ = os.MkdirAll(dir, 0o700)
	}

	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return expanded, nil
	}

	for i := 0; i < 1000; i++ {
		candidate := fmt.Sprintf("%s.%03d", expanded, i)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("recorder: no free filename for %q after 1000 collisions", expanded)
}

// expandStrftime expands the strftime fields gst-switch's original
// filename templating supports: %Y %m %d %H %M %S and a literal %%.
func expandStrftime(template string, t time.Time) string {
	out := make([]byte, 0, len(template)+16)
	for i := 0; i < len(template); i++ {
		if template[i] != '%' || i == len(template)-1 {
			out = append(out, template[i])
			continue
		}
		i++
		switch template[i] {
		case 'Y':
			out = append(out, fmt.Sprintf("%04d", t.Year())...)
		case 'm':
			out = append(out, fmt.Sprintf("%02d", int(t.Month()))...)
		case 'd':
			out = append(out, fmt.Sprintf("%02d", t.Day())...)
		case 'H':
			out = append(out, fmt.Sprintf("%02d", t.Hour())...)
		case 'M':
			out = append(out, fmt.Sprintf("%02d", t.Minute())...)
		case 'S':
			out = append(out, fmt.Sprintf("%02d", t.Second())...)
		case '%':
			out = append(out, '%')
		default:
			out = append(out, '%', template[i])
		}
	}
	return string(out)
}
