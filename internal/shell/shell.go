// Package shell serves the host operations as a line protocol. Every command
// line is answered with exactly one JSON line:
//
//	{"ok":true,"result":...}
//	{"ok":false,"code":"not_connected","message":"..."}
//
// Commands: scan, connect <id>, send <id> <data>, fan <id> <command>,
// disconnect [id], status, history, help, quit.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/device"
	"github.com/srg/fanlink/internal/fan"
	"github.com/srg/fanlink/internal/groutine"
	"github.com/srg/fanlink/internal/host"
	"github.com/srg/fanlink/internal/session"
)

// Codes for failures that do not come from the session
const (
	CodeUsage     = "invalid_command"
	CodeCancelled = "cancelled"
	CodeInternal  = "error"
)

const maxLine = 64 * 1024

// Response is one protocol answer
type Response struct {
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Host is the part of host.Host the executor drives
type Host interface {
	ScanForDevices(ctx context.Context) ([]host.DeviceResult, error)
	ConnectToDevice(ctx context.Context, deviceID string) (bool, error)
	SendData(ctx context.Context, deviceID, data string) (bool, error)
	Disconnect(ctx context.Context, deviceID string) (bool, error)
	Status() host.Status
	History() []session.Transition
}

type handler struct {
	usage string
	args  int // required arguments; the last one takes the rest of the line
	run   func(ctx context.Context, args []string) (any, error)
}

// Executor runs protocol commands against a Host
type Executor struct {
	host     Host
	logger   *logrus.Logger
	commands map[string]handler
}

// NewExecutor creates an Executor over h
func NewExecutor(h Host, logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Executor{host: h, logger: logger}
	e.commands = map[string]handler{
		"scan": {usage: "scan", run: func(ctx context.Context, _ []string) (any, error) {
			return e.host.ScanForDevices(ctx)
		}},
		"connect": {usage: "connect <id>", args: 1, run: func(ctx context.Context, args []string) (any, error) {
			return e.host.ConnectToDevice(ctx, args[0])
		}},
		"send": {usage: "send <id> <data>", args: 2, run: func(ctx context.Context, args []string) (any, error) {
			return e.host.SendData(ctx, args[0], args[1])
		}},
		"fan": {usage: "fan <id> <on|off|low|medium|high|0-100>", args: 2, run: func(ctx context.Context, args []string) (any, error) {
			cmd, err := fan.Parse(args[1])
			if err != nil {
				return nil, usageError("%s", err)
			}
			return e.host.SendData(ctx, args[0], cmd.Payload())
		}},
		"disconnect": {usage: "disconnect [id]", run: func(ctx context.Context, args []string) (any, error) {
			return e.host.Disconnect(ctx, strings.Join(args, " "))
		}},
		"status": {usage: "status", run: func(context.Context, []string) (any, error) {
			return e.host.Status(), nil
		}},
		"history": {usage: "history", run: func(context.Context, []string) (any, error) {
			return e.host.History(), nil
		}},
		"help": {usage: "help", run: func(context.Context, []string) (any, error) {
			return e.usages(), nil
		}},
	}
	return e
}

type usageErr string

func (u usageErr) Error() string { return string(u) }

func usageError(format string, args ...any) error {
	return usageErr(fmt.Sprintf(format, args...))
}

func (e *Executor) usages() []string {
	out := make([]string, 0, len(e.commands)+1)
	for _, h := range e.commands {
		out = append(out, h.usage)
	}
	out = append(out, "quit")
	sort.Strings(out)
	return out
}

// Execute runs one command line. quit is true when the line asks to end the session.
func (e *Executor) Execute(ctx context.Context, line string) (resp Response, quit bool) {
	name, rest := splitWord(strings.TrimSpace(line))
	name = strings.ToLower(name)
	if name == "quit" || name == "exit" {
		return Response{OK: true, Result: true}, true
	}

	h, ok := e.commands[name]
	if !ok {
		return e.failure(usageError("unknown command %q, try help", name)), false
	}

	var args []string
	for i := 0; i < h.args; i++ {
		if rest == "" {
			return e.failure(usageError("usage: %s", h.usage)), false
		}
		if i == h.args-1 {
			args = append(args, rest)
			break
		}
		var word string
		word, rest = splitWord(rest)
		args = append(args, word)
	}
	if h.args == 0 && rest != "" {
		args = strings.Fields(rest)
	}

	log := e.logger.WithField("command", name)
	log.Debug("Executing shell command")
	result, err := h.run(ctx, args)
	if err != nil {
		log.WithError(err).Debug("Shell command failed")
		return e.failure(err), false
	}
	return Response{OK: true, Result: result}, false
}

func (e *Executor) failure(err error) Response {
	resp := Response{Message: device.MessageOf(err)}
	var uerr usageErr
	switch {
	case errors.As(err, &uerr):
		resp.Code = CodeUsage
	case device.CodeOf(err) != "":
		resp.Code = string(device.CodeOf(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		resp.Code = CodeCancelled
	default:
		resp.Code = CodeInternal
	}
	return resp
}

func splitWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimLeft(s[i+1:], " \t")
	}
	return s, ""
}

// ServeOptions configures Serve
type ServeOptions struct {
	// Prompt is written before every command when not empty.
	Prompt string
	// LineEnding terminates every response; empty means "\n".
	LineEnding string
	// KeepAlive answers quit without ending Serve, for transports that outlive one client.
	KeepAlive bool
}

// Serve reads commands from in until EOF, quit, or ctx is done, writing one
// response per command to out. Reaching EOF or quit returns nil.
func (e *Executor) Serve(ctx context.Context, in io.Reader, out io.Writer, opts *ServeOptions) error {
	if opts == nil {
		opts = &ServeOptions{}
	}
	eol := opts.LineEnding
	if eol == "" {
		eol = "\n"
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	groutine.Go(readCtx, "shell-reader", func(ctx context.Context) {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 4096), maxLine)
		scanner.Split(scanCommandLines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	})

	for {
		if opts.Prompt != "" {
			if _, err := io.WriteString(out, opts.Prompt); err != nil {
				return err
			}
		}

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read command: %w", err)
			}
			return nil
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		resp, quit := e.Execute(ctx, line)
		if err := writeResponse(out, resp, eol); err != nil {
			return err
		}
		if quit && !opts.KeepAlive {
			return nil
		}
	}
}

func writeResponse(out io.Writer, resp Response, eol string) error {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(Response{Code: CodeInternal, Message: err.Error()})
	}
	data = append(data, eol...)
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// scanCommandLines splits on "\n", "\r\n" or a bare "\r" (raw terminals send
// carriage returns on Enter).
func scanCommandLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
