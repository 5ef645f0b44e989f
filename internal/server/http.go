package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// statusResponse is the read-only introspection payload served at
// GET /status.
type statusResponse struct {
	Mode         string        `json:"mode"`
	ComposePort  int           `json:"compose_port"`
	EncodePort   int           `json:"encode_port"`
	AudioPort    int           `json:"audio_port"`
	Recording    bool          `json:"recording"`
	PreviewPorts []PreviewPort `json:"preview_ports"`
}

// Router builds the read-only operator/test HTTP introspection API.
func (d *Dispatcher) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", d.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/preview-ports", d.handlePreviewPorts).Methods(http.MethodGet)
	return r
}

func (d *Dispatcher) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.recorderMu.Lock()
	recording := d.rec != nil
	d.recorderMu.Unlock()

	resp := statusResponse{
		Mode:         d.comp.Mode().String(),
		ComposePort:  d.GetComposePort(),
		EncodePort:   d.GetEncodePort(),
		AudioPort:    d.GetAudioPort(),
		Recording:    recording,
		PreviewPorts: d.GetPreviewPorts(),
	}
	writeJSON(w, resp)
}

func (d *Dispatcher) handlePreviewPorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.GetPreviewPorts())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
