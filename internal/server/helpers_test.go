package server

import (
	"testing"

	"github.com/mithro/gst-switch/internal/format"
)

func pipelineTestCaps(t *testing.T) format.Caps {
	t.Helper()
	caps, err := format.ParseFormat("debug")
	if err != nil {
		t.Fatalf("parse test caps: %v", err)
	}
	return caps
}
