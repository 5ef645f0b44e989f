// Package surface implements the inter-pipeline buffer surface registry: a
// named, reference-counted shared-buffer rendezvous that lets independently
// running media pipelines exchange raw frames with at-most-one-writer,
// at-most-one-reader-copy semantics.
//
// Grounded on the registry/refcount pattern of
// helix/api/pkg/desktop/shared_video_source.go's SharedVideoSourceRegistry,
// generalized from "one GStreamer pipeline per PipeWire node" to "one
// buffer slot per named channel".
package surface

import (
	"sync"

	"github.com/go-gst/go-gst/gst"
)

// VideoInfo describes the negotiated video format of a Surface. The zero
// value means "no caps yet".
type VideoInfo struct {
	Format string
	Width  int
	Height int
	FPSNum int
	FPSDen int
	ParNum int
	ParDen int
}

// HasCaps reports whether video_info has been set at least once.
func (v VideoInfo) HasCaps() bool {
	return v.Width != 0 && v.Height != 0
}

// Surface is the central shared-state object: one named slot holding the
// latest video buffer and latest audio buffer, shared by exactly one writer
// pipeline and one or more reader pipelines.
type Surface struct {
	name string

	mu               sync.Mutex
	videoInfo        VideoInfo
	videoBuffer      *gst.Buffer
	audioBuffer      *gst.Buffer
	videoBufferCount int
	audioBufferCount int

	refcount int
}

// Name returns the surface's channel name (e.g. "input_3010", "composite_a").
func (s *Surface) Name() string {
	return s.name
}

// Lock acquires the surface's field lock. All reads and writes of
// video_info, video_buffer, audio_buffer, and the dedup counters must occur
// under this lock.
func (s *Surface) Lock() {
	s.mu.Lock()
}

// Unlock releases the surface's field lock.
func (s *Surface) Unlock() {
	s.mu.Unlock()
}

// Registry is the named, refcounted rendezvous for Surfaces. Registry
// membership changes (create/destroy) are serialized by a single
// registry-wide lock. Lock ordering is always registry then surface, never
// the reverse.
type Registry struct {
	mu       sync.Mutex
	surfaces map[string]*Surface
}

// NewRegistry constructs an empty surface registry.
func NewRegistry() *Registry {
	return &Registry{surfaces: make(map[string]*Surface)}
}

// Get returns the Surface for channel, creating it if absent, and
// increments its refcount. Two concurrent Get calls for the same name
// return the same instance; lookups never fail.
func (r *Registry) Get(channel string) *Surface {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.surfaces[channel]; ok {
		s.refcount++
		return s
	}

	s := &Surface{name: channel, refcount: 1}
	r.surfaces[channel] = s
	return s
}

// Unref decrements s's refcount; when it reaches zero, s is removed from the
// registry and destroyed, releasing any held buffers.
func (r *Registry) Unref(s *Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.refcount--
	if s.refcount > 0 {
		return
	}

	delete(r.surfaces, s.name)

	s.Lock()
	s.destroyLocked()
	s.Unlock()
}

// destroyLocked releases held buffers and zeroes video_info, matching the
// "stopping a writer" invariant.
func (s *Surface) destroyLocked() {
	if s.videoBuffer != nil {
		s.videoBuffer.Unref()
		s.videoBuffer = nil
	}
	if s.audioBuffer != nil {
		s.audioBuffer.Unref()
		s.audioBuffer = nil
	}
	s.videoInfo = VideoInfo{}
	s.videoBufferCount = 0
	s.audioBufferCount = 0
}

// Refcount reports the surface's current reference count. Exposed for tests
// exercising the registry's lifecycle invariants.
func (r *Registry) Refcount(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.surfaces[channel]; ok {
		return s.refcount
	}
	return 0
}

// PublishVideo replaces s's current video buffer with buf under the
// surface's lock: a reference is taken on buf before it is stored, the
// previous buffer's reference is dropped, and the dedup counter resets to
// 0. buf may be the same underlying buffer the surface already holds (a
// writer publishing unchanged); Ref-before-Unref ordering keeps that case
// from dropping the refcount to zero between the two calls.
func PublishVideo(s *Surface, buf *gst.Buffer) {
	s.Lock()
	defer s.Unlock()
	if buf != nil {
		buf.Ref()
	}
	prev := s.videoBuffer
	s.videoBuffer = buf
	if prev != nil {
		prev.Unref()
	}
	s.videoBufferCount = 0
}

// PublishAudio is PublishVideo's audio-channel counterpart.
func PublishAudio(s *Surface, buf *gst.Buffer) {
	s.Lock()
	defer s.Unlock()
	if buf != nil {
		buf.Ref()
	}
	prev := s.audioBuffer
	s.audioBuffer = buf
	if prev != nil {
		prev.Unref()
	}
	s.audioBufferCount = 0
}

// TakeVideo returns a new reference to the current video buffer (or nil)
// under the surface's lock and increments the dedup counter. The caller
// owns the returned reference and must Unref it once done.
func TakeVideo(s *Surface) *gst.Buffer {
	s.Lock()
	defer s.Unlock()
	s.videoBufferCount++
	if s.videoBuffer == nil {
		return nil
	}
	return s.videoBuffer.Ref()
}

// TakeAudio is TakeVideo's audio-channel counterpart.
func TakeAudio(s *Surface) *gst.Buffer {
	s.Lock()
	defer s.Unlock()
	s.audioBufferCount++
	if s.audioBuffer == nil {
		return nil
	}
	return s.audioBuffer.Ref()
}

// SetVideoInfo updates s's negotiated video caps under the surface's lock.
func SetVideoInfo(s *Surface, info VideoInfo) {
	s.Lock()
	defer s.Unlock()
	s.videoInfo = info
}

// GetVideoInfo reads s's negotiated video caps under the surface's lock.
func GetVideoInfo(s *Surface) VideoInfo {
	s.Lock()
	defer s.Unlock()
	return s.videoInfo
}

// VideoBufferCount reads the reader-dedup counter for the video buffer.
func VideoBufferCount(s *Surface) int {
	s.Lock()
	defer s.Unlock()
	return s.videoBufferCount
}
