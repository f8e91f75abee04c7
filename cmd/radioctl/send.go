package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/radioctl/internal/channel"
	"github.com/danmuck/radioctl/internal/driver"
	"github.com/danmuck/radioctl/internal/observability"
	"github.com/danmuck/radioctl/internal/protocol/frame"
	"github.com/danmuck/radioctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one request frame and print the outcome",
	Example: `  radioctl send --func 0x15 --expect-response
  radioctl send --func 0x13 --data 05,02,20,02 --node 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		req, err := parseSendFlags(cmd)
		if err != nil {
			return err
		}

		port, err := channel.Open(cfg.Serial)
		if err != nil {
			return err
		}
		defer port.Close()

		drv, err := driver.New(port, cfg.Protocol,
			driver.WithLogger(observability.ComponentLogger("radioctl", "driver")),
		)
		if err != nil {
			return err
		}
		defer func() {
			tctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
			defer cancel()
			if err := drv.Terminate(tctx); err != nil {
				log.Warn().Err(err).Msg("terminate")
			}
		}()

		ctx, cancel := context.WithTimeout(cmd.Context(), req.timeout)
		defer cancel()
		payload := frame.Request(req.fn, req.data...)
		reply, err := drv.Send(ctx, req.priority, payload, req.expect)
		if err != nil {
			return fmt.Errorf("send % x: %w", payload, err)
		}
		fmt.Printf("sent  % x\nreply %s\n", payload, reply)
		return nil
	},
}

func init() {
	addSendFlags(sendCmd)
}

func addSendFlags(cmd *cobra.Command) {
	cmd.Flags().String("func", "", "function id, decimal or 0x-prefixed hex")
	cmd.Flags().String("data", "", "comma separated hex data bytes, e.g. 05,02,20")
	cmd.Flags().Int("node", int(session.NoNode), "destination node; negative sends as controller traffic")
	cmd.Flags().Bool("high", false, "use the high per-node priority level")
	cmd.Flags().Bool("expect-response", false, "wait for the RESPONSE frame with the same function id")
	cmd.Flags().Duration("timeout", 10*time.Second, "overall wait for the outcome")
	_ = cmd.MarkFlagRequired("func")
}

type sendRequest struct {
	fn       byte
	data     []byte
	priority session.Priority
	expect   session.ReplyMatcher
	timeout  time.Duration
}

func parseSendFlags(cmd *cobra.Command) (sendRequest, error) {
	flags := cmd.Flags()
	rawFn, _ := flags.GetString("func")
	rawData, _ := flags.GetString("data")
	node, _ := flags.GetInt("node")
	high, _ := flags.GetBool("high")
	expect, _ := flags.GetBool("expect-response")
	timeout, _ := flags.GetDuration("timeout")

	fn, err := parseFunc(rawFn)
	if err != nil {
		return sendRequest{}, err
	}
	data, err := parseData(rawData)
	if err != nil {
		return sendRequest{}, err
	}
	req := sendRequest{
		fn:       fn,
		data:     data,
		priority: pickPriority(session.NodeID(node), high),
		timeout:  timeout,
	}
	if expect {
		req.expect = session.ExpectResponse(fn)
	}
	return req, nil
}

func parseFunc(raw string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid --func %q: %w", raw, err)
	}
	return byte(v), nil
}

func parseData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]byte, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(part)), "0x")
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid --data byte %q: %w", part, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func pickPriority(node session.NodeID, high bool) session.Priority {
	switch {
	case node < 0:
		return session.ControllerPriority()
	case high:
		return session.NodePriorityHi(node)
	default:
		return session.NodePriorityLo(node)
	}
}
