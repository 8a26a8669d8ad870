// Command interax-ctl is an interactive hub client.
//
// It connects to a hub daemon, speaks the framed envelope protocol,
// and exposes the interaction operations as shell commands. Targets
// are written endpoint/cluster/member with decimal ids.
//
// Usage:
//
//	interax-ctl [flags]
//
// Flags:
//
//	-address string   Hub address (default "127.0.0.1:7474")
//	-identity string  Fabric-qualified identity to speak as (default "fab-ctl/1")
//	-timeout duration Request timeout (default 30s)
//
// Interactive Commands:
//
//	read <ep>/<cl>/<attr>                - Read an attribute
//	write <ep>/<cl>/<attr> <value>       - Write an attribute
//	invoke <ep>/<cl>/<cmd> [k=v ...]     - Invoke a command
//	subscribe <ep>/<cl>/<attr> [min-ms]  - Subscribe to attribute changes
//	events <ep>/<cl>/<event>             - Subscribe to an event
//	unsubscribe <id>                     - Cancel a subscription
//	subs                                 - List open subscriptions
//	quit                                 - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/interax-protocol/interax-go/pkg/interaction"
	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/transport"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

var (
	address  string
	identity string
	timeout  time.Duration
)

func init() {
	flag.StringVar(&address, "address", "127.0.0.1:7474", "Hub address")
	flag.StringVar(&identity, "identity", "fab-ctl/1", "Fabric-qualified identity to speak as")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
}

func main() {
	flag.Parse()

	conn, err := transport.Dial(address, log.NoopLogger{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", address, err)
		os.Exit(1)
	}

	client := interaction.NewClient(identity, conn)
	client.SetTimeout(timeout)
	defer client.Close()

	sh, err := newShell(client)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Fprintf(sh.out(), "Connected to %s as %s\n", address, identity)
	sh.run()
}

// shell is the interactive command loop.
type shell struct {
	client  *interaction.Client
	rl      *readline.Instance
	streams map[uint32]*interaction.SubscriptionStream
}

func newShell(client *interaction.Client) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "interax> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{
		client:  client,
		rl:      rl,
		streams: make(map[uint32]*interaction.SubscriptionStream),
	}, nil
}

func (s *shell) out() io.Writer {
	return s.rl.Stdout()
}

func (s *shell) run() {
	defer s.rl.Close()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "read", "r":
			s.cmdRead(args)

		case "write", "w":
			s.cmdWrite(args)

		case "invoke", "i":
			s.cmdInvoke(args)

		case "subscribe", "sub":
			s.cmdSubscribe(args, wire.TargetAttribute)

		case "events", "ev":
			s.cmdSubscribe(args, wire.TargetEvent)

		case "unsubscribe", "unsub":
			s.cmdUnsubscribe(args)

		case "subs":
			s.cmdSubs()

		case "quit", "exit", "q":
			fmt.Fprintln(s.out(), "Exiting...")
			return

		default:
			fmt.Fprintf(s.out(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out(), `
Commands:
  read <ep>/<cl>/<attr>                - Read an attribute
  write <ep>/<cl>/<attr> <value>       - Write an attribute
  invoke <ep>/<cl>/<cmd> [k=v ...]     - Invoke a command
  subscribe <ep>/<cl>/<attr> [min-ms]  - Subscribe to attribute changes
  events <ep>/<cl>/<event>             - Subscribe to an event
  unsubscribe <id>                     - Cancel a subscription
  subs                                 - List open subscriptions
  quit                                 - Exit`)
}

func (s *shell) cmdRead(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out(), "Usage: read <ep>/<cl>/<attr>")
		return
	}
	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintln(s.out(), err)
		return
	}

	ctx, cancel := s.ctx()
	defer cancel()

	value, revision, err := s.client.Read(ctx, target)
	if err != nil {
		fmt.Fprintf(s.out(), "Read failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out(), "%v (revision %d)\n", value, revision)
}

func (s *shell) cmdWrite(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out(), "Usage: write <ep>/<cl>/<attr> <value>")
		return
	}
	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintln(s.out(), err)
		return
	}

	ctx, cancel := s.ctx()
	defer cancel()

	revision, err := s.client.Write(ctx, target, parseValue(args[1]))
	if err != nil {
		fmt.Fprintf(s.out(), "Write failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out(), "OK (revision %d)\n", revision)
}

func (s *shell) cmdInvoke(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out(), "Usage: invoke <ep>/<cl>/<cmd> [key=value ...]")
		return
	}
	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintln(s.out(), err)
		return
	}

	var params map[string]any
	if len(args) > 1 {
		params = make(map[string]any, len(args)-1)
		for _, arg := range args[1:] {
			key, value, ok := strings.Cut(arg, "=")
			if !ok {
				fmt.Fprintf(s.out(), "Bad parameter %q, want key=value\n", arg)
				return
			}
			params[key] = parseValue(value)
		}
	}

	ctx, cancel := s.ctx()
	defer cancel()

	result, err := s.client.Invoke(ctx, target, params, timeout)
	if err != nil {
		fmt.Fprintf(s.out(), "Invoke failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out(), "Result: %v\n", result)
}

func (s *shell) cmdSubscribe(args []string, kind wire.SubscribeTarget) {
	if len(args) < 1 {
		fmt.Fprintln(s.out(), "Usage: subscribe <ep>/<cl>/<member> [min-interval-ms]")
		return
	}
	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintln(s.out(), err)
		return
	}

	opts := interaction.SubscribeOptions{TargetKind: kind}
	if len(args) > 1 {
		ms, err := strconv.Atoi(args[1])
		if err != nil || ms < 0 {
			fmt.Fprintf(s.out(), "Bad min interval %q\n", args[1])
			return
		}
		opts.MinInterval = time.Duration(ms) * time.Millisecond
	}

	ctx, cancel := s.ctx()
	defer cancel()

	stream, err := s.client.Subscribe(ctx, target, opts)
	if err != nil {
		fmt.Fprintf(s.out(), "Subscribe failed: %v\n", err)
		return
	}

	id := stream.SubscriptionID()
	s.streams[id] = stream
	fmt.Fprintf(s.out(), "Subscription %d active\n", id)

	go s.watch(stream)
}

// watch prints a stream's notifications until it ends.
func (s *shell) watch(stream *interaction.SubscriptionStream) {
	for n := range stream.Notifications() {
		target := stream.Target()
		if n.Sequence > 0 {
			fmt.Fprintf(s.out(), "[sub %d] %d/%d/%d seq=%d %v\n",
				n.SubscriptionID, target.Endpoint, target.Cluster, target.Member, n.Sequence, n.Value)
		} else {
			fmt.Fprintf(s.out(), "[sub %d] %d/%d/%d rev=%d %v\n",
				n.SubscriptionID, target.Endpoint, target.Cluster, target.Member, n.Revision, n.Value)
		}
	}
	fmt.Fprintf(s.out(), "[sub %d] ended\n", stream.SubscriptionID())
}

func (s *shell) cmdUnsubscribe(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out(), "Usage: unsubscribe <id>")
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(s.out(), "Bad subscription id %q\n", args[0])
		return
	}

	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Unsubscribe(ctx, uint32(id)); err != nil {
		fmt.Fprintf(s.out(), "Unsubscribe failed: %v\n", err)
		return
	}
	delete(s.streams, uint32(id))
	fmt.Fprintln(s.out(), "OK")
}

func (s *shell) cmdSubs() {
	if len(s.streams) == 0 {
		fmt.Fprintln(s.out(), "No open subscriptions")
		return
	}
	ids := make([]uint32, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		stream := s.streams[id]
		target := stream.Target()
		fmt.Fprintf(s.out(), "  %d: %d/%d/%d\n", id, target.Endpoint, target.Cluster, target.Member)
	}
}

func (s *shell) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// parseTarget parses "endpoint/cluster/member" with decimal ids.
func parseTarget(spec string) (wire.Target, error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 3 {
		return wire.Target{}, fmt.Errorf("bad target %q, want <ep>/<cl>/<member>", spec)
	}
	ids := make([]uint16, 3)
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return wire.Target{}, fmt.Errorf("bad target %q: %v", spec, err)
		}
		ids[i] = uint16(v)
	}
	return wire.Target{Endpoint: ids[0], Cluster: ids[1], Member: ids[2]}, nil
}

// parseValue interprets a shell word as bool, int, float, or string.
func parseValue(word string) any {
	switch word {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}
	if v, err := strconv.ParseInt(word, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(word, 64); err == nil {
		return v
	}
	return strings.Trim(word, `"`)
}
