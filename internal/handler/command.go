// Package handler builds queue handlers that run external commands.
package handler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"flushq/internal/queue"
	logx "flushq/pkg/logx"
)

// maxOutput bounds the command output quoted in an error.
const maxOutput = 512

// Command runs argv with the payload on stdin. A non-zero exit (or a
// timeout) is a failed attempt; the error carries the trimmed output.
type Command struct {
	Argv    []string
	Timeout time.Duration
	Log     logx.Logger
}

func (c Command) Run(ctx context.Context, payload string) error {
	if len(c.Argv) == 0 {
		return fmt.Errorf("empty command")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(payload)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	if !c.Log.IsZero() {
		c.Log.Trace("command finished",
			logx.String("cmd", c.Argv[0]),
			logx.Duration("dur", time.Since(start)),
			logx.Bool("ok", err == nil),
		)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", c.Argv[0], ctx.Err())
	}
	msg := strings.TrimSpace(out.String())
	if len(msg) > maxOutput {
		msg = msg[:maxOutput] + "..."
	}
	if msg == "" {
		return fmt.Errorf("%s: %w", c.Argv[0], err)
	}
	return fmt.Errorf("%s: %w: %s", c.Argv[0], err, msg)
}

// Build binds commands to a handler of the given kind.
func Build(kind queue.HandlerKind, commands [][]string, timeout time.Duration, log logx.Logger) (queue.Handler[string], error) {
	fns := make([]queue.Func[string], 0, len(commands))
	for _, argv := range commands {
		fns = append(fns, Command{Argv: argv, Timeout: timeout, Log: log}.Run)
	}
	switch kind {
	case queue.KindSingle:
		if len(fns) != 1 {
			return queue.Handler[string]{}, fmt.Errorf("single handler needs exactly one command, got %d", len(fns))
		}
		return queue.Single(fns[0]), nil
	case queue.KindMulticast:
		return queue.Multicast(fns...), nil
	case queue.KindBroadcast:
		return queue.Broadcast(fns...), nil
	default:
		return queue.Handler[string]{}, fmt.Errorf("unknown handler kind %s", kind)
	}
}
