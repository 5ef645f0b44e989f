package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ControlChannel binds the Dispatcher's control operations to NATS
// request/reply subjects (gst-switch.control.*) and publishes lifecycle
// signals on gst-switch.events.*, grounded on how
// helix/api/pkg/pubsub wraps nats.go/nats-server for an embeddable,
// in-process message bus.
type ControlChannel struct {
	log      zerolog.Logger
	conn     *nats.Conn
	embedded *natsserver.Server
	subs     []*nats.Subscription
}

// NatsEvents implements composite.Events by publishing JSON payloads on
// gst-switch.events.<subject-suffix>.
type NatsEvents struct {
	conn *nats.Conn
}

func (e *NatsEvents) Publish(subject string, payload any) {
	if e.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = e.conn.Publish(subject, data)
}

// connectControllerAddr connects to addr; if that connection fails, whatever
// addr is, an embedded nats-server is started in its place, mirroring the
// dev-mode fallback of helix/api/pkg/pubsub.
func connectControllerAddr(addr string, log zerolog.Logger) (*nats.Conn, *natsserver.Server, error) {
	conn, err := nats.Connect(addr, nats.Timeout(2*time.Second), nats.RetryOnFailedConnect(false))
	if err == nil {
		return conn, nil, nil
	}

	log.Warn().Err(err).Str("addr", addr).Msg("controller unreachable; starting embedded nats-server")

	storeDir, mkErr := os.MkdirTemp("", "gst-switch-nats")
	if mkErr != nil {
		return nil, nil, fmt.Errorf("server: create embedded nats store dir: %w", mkErr)
	}

	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // random free port
		JetStream: false,
		StoreDir:  storeDir,
	}
	ns, nsErr := natsserver.NewServer(opts)
	if nsErr != nil {
		return nil, nil, fmt.Errorf("server: create embedded nats-server: %w", nsErr)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, nil, fmt.Errorf("server: embedded nats-server did not become ready")
	}

	conn, err = nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("server: connect to embedded nats-server: %w", err)
	}
	return conn, ns, nil
}

// StartControlChannel connects to d.cfg.ControllerAddr and subscribes the
// gst-switch.control.* request/reply handlers. Lifecycle events published
// thereafter use the returned ControlChannel's connection.
func (d *Dispatcher) StartControlChannel() (*ControlChannel, error) {
	conn, embedded, err := connectControllerAddr(d.cfg.ControllerAddr, d.log)
	if err != nil {
		return nil, err
	}

	cc := &ControlChannel{log: d.log, conn: conn, embedded: embedded}
	d.events = &NatsEvents{conn: conn}
	d.comp.SetEvents(d.events)

	subject := func(op string) string { return "gst-switch.control." + op }

	register := func(op string, handler nats.MsgHandler) error {
		sub, err := conn.Subscribe(subject(op), handler)
		if err != nil {
			return fmt.Errorf("server: subscribe %s: %w", subject(op), err)
		}
		cc.subs = append(cc.subs, sub)
		return nil
	}

	if err := register("get_compose_port", d.handleGetComposePort); err != nil {
		return nil, err
	}
	if err := register("get_audio_port", d.handleGetAudioPort); err != nil {
		return nil, err
	}
	if err := register("get_encode_port", d.handleGetEncodePort); err != nil {
		return nil, err
	}
	if err := register("get_preview_ports", d.handleGetPreviewPorts); err != nil {
		return nil, err
	}
	if err := register("set_composite_mode", d.handleSetCompositeMode); err != nil {
		return nil, err
	}
	if err := register("switch", d.handleSwitch); err != nil {
		return nil, err
	}
	if err := register("adjust_pip", d.handleAdjustPIP); err != nil {
		return nil, err
	}
	if err := register("new_record", d.handleNewRecord); err != nil {
		return nil, err
	}

	return cc, nil
}

// Close drains subscriptions and tears down the NATS connection (and the
// embedded server, if one was started).
func (cc *ControlChannel) Close() {
	for _, sub := range cc.subs {
		_ = sub.Unsubscribe()
	}
	if cc.conn != nil {
		cc.conn.Close()
	}
	if cc.embedded != nil {
		cc.embedded.Shutdown()
	}
}

func respondJSON(log zerolog.Logger, msg *nats.Msg, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("control channel: marshal reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Msg("control channel: respond")
	}
}

func (d *Dispatcher) handleGetComposePort(msg *nats.Msg) {
	respondJSON(d.log, msg, map[string]int{"port": d.GetComposePort()})
}

func (d *Dispatcher) handleGetAudioPort(msg *nats.Msg) {
	respondJSON(d.log, msg, map[string]int{"port": d.GetAudioPort()})
}

func (d *Dispatcher) handleGetEncodePort(msg *nats.Msg) {
	respondJSON(d.log, msg, map[string]int{"port": d.GetEncodePort()})
}

func (d *Dispatcher) handleGetPreviewPorts(msg *nats.Msg) {
	respondJSON(d.log, msg, d.GetPreviewPorts())
}

type setModeRequest struct {
	Mode int `json:"mode"`
}

func (d *Dispatcher) handleSetCompositeMode(msg *nats.Msg) {
	var req setModeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		respondJSON(d.log, msg, map[string]bool{"ok": false})
		return
	}
	ok := d.SetCompositeMode(context.Background(), modeFromInt(req.Mode))
	respondJSON(d.log, msg, map[string]bool{"ok": ok})
}

type switchRequest struct {
	Channel string `json:"channel"`
	Port    int    `json:"port"`
}

func (d *Dispatcher) handleSwitch(msg *nats.Msg) {
	var req switchRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || len(req.Channel) != 1 {
		respondJSON(d.log, msg, map[string]bool{"ok": false})
		return
	}
	ok := d.Switch(context.Background(), req.Channel[0], req.Port)
	respondJSON(d.log, msg, map[string]bool{"ok": ok})
}

type adjustPIPRequest struct {
	DX, DY, DW, DH int
}

func (d *Dispatcher) handleAdjustPIP(msg *nats.Msg) {
	var req adjustPIPRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		respondJSON(d.log, msg, map[string]bool{"ok": false})
		return
	}
	d.AdjustPIP(req.DX, req.DY, req.DW, req.DH)
	respondJSON(d.log, msg, map[string]bool{"ok": true})
}

func (d *Dispatcher) handleNewRecord(msg *nats.Msg) {
	err := d.NewRecord(context.Background())
	respondJSON(d.log, msg, map[string]bool{"ok": err == nil})
}
