// Command gst-switch-ui is a thin CLI front-end for the control channel
// gst-switch-server exposes over NATS. It does not render a GUI; its
// subcommands issue request/reply calls against
// gst-switch.control.<operation> and print the JSON reply, so an operator
// or script can drive switching without a graphical client.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mithro/gst-switch/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gst-switch-ui",
		Short: "Drive gst-switch-server's control channel",
	}
	root.PersistentFlags().String("address", "", "override GST_SWITCH_UI_ADDRESS / the controller NATS URL")

	root.AddCommand(newStatusCmd())
	root.AddCommand(newSwitchCmd())
	root.AddCommand(newSetModeCmd())
	root.AddCommand(newNewRecordCmd())
	return root
}

func controllerConn(cmd *cobra.Command) (*nats.Conn, time.Duration, error) {
	uiCfg, err := config.LoadUIConfig()
	if err != nil {
		return nil, 0, fmt.Errorf("load ui config: %w", err)
	}

	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = uiCfg.Address
	}
	timeout := time.Duration(uiCfg.RequestTimeoutMs) * time.Millisecond

	conn, err := nats.Connect(addr, nats.Timeout(2*time.Second))
	return conn, timeout, err
}

func request(cmd *cobra.Command, op string, payload any) error {
	conn, timeout, err := controllerConn(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	reply, err := conn.Request("gst-switch.control."+op, data, timeout)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	fmt.Println(string(reply.Data))
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print compose/encode/audio ports and preview ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := request(cmd, "get_compose_port", struct{}{}); err != nil {
				return err
			}
			if err := request(cmd, "get_encode_port", struct{}{}); err != nil {
				return err
			}
			if err := request(cmd, "get_audio_port", struct{}{}); err != nil {
				return err
			}
			return request(cmd, "get_preview_ports", struct{}{})
		},
	}
}

func newSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <A|B|a> <port>",
		Short: "Switch the given channel to read from port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var port int
			if _, err := fmt.Sscanf(args[1], "%d", &port); err != nil {
				return fmt.Errorf("invalid port %q: %w", args[1], err)
			}
			return request(cmd, "switch", map[string]any{"channel": args[0], "port": port})
		},
	}
}

func newSetModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-mode <none|pip|dual-preview|dual-equal>",
		Short: "Change the composition mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := map[string]int{"none": 0, "pip": 1, "dual-preview": 2, "dual-equal": 3}[args[0]]
			if !ok {
				return fmt.Errorf("unknown mode %q", args[0])
			}
			return request(cmd, "set_composite_mode", map[string]int{"mode": mode})
		},
	}
}

func newNewRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-record",
		Short: "Force a recording cut",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return request(cmd, "new_record", struct{}{})
		},
	}
}
