package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/flow"
)

// consoleTransport reads chat lines from a stream and prints replies as text.
// With a fixed user every line belongs to that user; otherwise each line is
// "<external id> <message>".
type consoleTransport struct {
	lines <-chan string
	errs  <-chan error
	out   io.Writer
	user  int64
	mu    sync.Mutex
}

func newConsoleTransport(in io.Reader, out io.Writer, user int64) *consoleTransport {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		errs <- scanner.Err()
	}()
	return &consoleTransport{lines: lines, errs: errs, out: out, user: user}
}

func (c *consoleTransport) Receive(ctx context.Context) (flow.Input, error) {
	for {
		var (
			raw string
			ok  bool
		)
		select {
		case <-ctx.Done():
			return flow.Input{}, ctx.Err()
		case raw, ok = <-c.lines:
		}
		if !ok {
			if err := <-c.errs; err != nil {
				return flow.Input{}, err
			}
			return flow.Input{}, io.EOF
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if c.user != 0 {
			return flow.ParseInput(c.user, line), nil
		}
		user, rest, err := splitUserLine(line)
		if err != nil {
			c.writeLine(fmt.Sprintf("! %s", err.Error()))
			continue
		}
		return flow.ParseInput(user, rest), nil
	}
}

func (c *consoleTransport) Send(_ context.Context, externalID int64, reply flow.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, renderReply(externalID, reply, c.user == 0))
	return err
}

func (c *consoleTransport) writeLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}

func splitUserLine(line string) (int64, string, error) {
	head, rest, _ := strings.Cut(line, " ")
	user, err := strconv.ParseInt(head, 10, 64)
	if err != nil || user <= 0 {
		return 0, "", clierr.New(clierr.CodeUsage, "expected \"<user id> <message>\"")
	}
	return user, strings.TrimSpace(rest), nil
}

func renderReply(externalID int64, reply flow.Reply, tagUser bool) string {
	var b strings.Builder
	if tagUser {
		fmt.Fprintf(&b, "[%d] ", externalID)
	}
	if reply.Kind == flow.KindError {
		b.WriteString("! ")
	}
	b.WriteString(reply.Text)
	b.WriteString("\n")
	for _, f := range reply.Fields {
		fmt.Fprintf(&b, "  %s: %s\n", f.Label, f.Value)
	}
	if reply.TxHash != "" {
		fmt.Fprintf(&b, "  Tx: %s\n", reply.TxHash)
	}
	if reply.ExplorerURL != "" {
		fmt.Fprintf(&b, "  %s\n", reply.ExplorerURL)
	}
	if len(reply.Buttons) > 0 {
		cmds := make([]string, 0, len(reply.Buttons))
		for _, btn := range reply.Buttons {
			cmds = append(cmds, fmt.Sprintf("%s (%s)", btn.Label, btn.Command()))
		}
		fmt.Fprintf(&b, "  > %s\n", strings.Join(cmds, " | "))
	}
	return b.String()
}
