// Package repl is the interactive line-oriented surface over a search session.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/cli"
	"github.com/altiplano/parasearch/internal/session"
)

const prompt = "parasearch> "

const helpText = `Commands:
  <text>          search for <text>
  :examples       list example queries
  :use N          put example N in the query buffer
  :search         search for the query buffer
  :toggle N, :t N show more / show less for result N
  :show           show the current results again
  :help           show this help
  :quit           exit
`

// Option configures a REPL.
type Option func(*REPL)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *REPL) { r.logger = l }
}

// WithRenderOptions sets the initial render options.
func WithRenderOptions(opts cli.RenderOptions) Option {
	return func(r *REPL) { r.render = opts }
}

// WithPrompt enables or disables the input prompt.
func WithPrompt(on bool) Option {
	return func(r *REPL) { r.prompt = on }
}

// REPL reads commands and renders the session after each one.
type REPL struct {
	ctrl   *session.Controller
	out    io.Writer
	logger *zap.Logger
	prompt bool

	mu     sync.Mutex
	render cli.RenderOptions
}

// New creates a REPL driving ctrl and writing to out. ctrl must be started.
func New(ctrl *session.Controller, out io.Writer, opts ...Option) *REPL {
	r := &REPL{
		ctrl:   ctrl,
		out:    out,
		logger: zap.NewNop(),
		prompt: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetRenderOptions swaps the render options used for subsequent output.
func (r *REPL) SetRenderOptions(opts cli.RenderOptions) {
	r.mu.Lock()
	r.render = opts
	r.mu.Unlock()
}

func (r *REPL) renderOptions() cli.RenderOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.render
}

// Run processes lines from in until EOF, :quit, or ctx is done.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if r.prompt {
			fmt.Fprint(r.out, prompt)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		}
		quit, err := r.handle(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// handle runs one input line. It reports true when the session should end.
func (r *REPL) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, r.search(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ":quit", ":q", ":exit":
		return true, nil
	case ":help", ":h":
		fmt.Fprint(r.out, helpText)
	case ":examples":
		r.listExamples()
	case ":use":
		n, ok := r.parseIndex(arg)
		if !ok {
			return false, nil
		}
		if !r.ctrl.UseExample(n - 1) {
			fmt.Fprintf(r.out, "No example %d\n", n)
			return false, nil
		}
		fmt.Fprintf(r.out, "Query: %s\n", r.ctrl.Snapshot().Query)
	case ":search":
		return false, r.search(ctx, r.ctrl.Snapshot().Query)
	case ":toggle", ":t":
		n, ok := r.parseIndex(arg)
		if !ok {
			return false, nil
		}
		if !r.ctrl.Toggle(n - 1) {
			fmt.Fprintf(r.out, "Result %d has no more to show\n", n)
			return false, nil
		}
		return false, r.show()
	case ":show":
		return false, r.show()
	default:
		fmt.Fprintf(r.out, "Unknown command %s; type :help\n", cmd)
	}
	return false, nil
}

func (r *REPL) parseIndex(arg string) (int, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		fmt.Fprintf(r.out, "Expected a number from 1, got %q\n", arg)
		return 0, false
	}
	return n, true
}

// search submits query and renders the settled state. Submission waits while a search
// is already in flight.
func (r *REPL) search(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(r.out, "Enter a query first")
		return nil
	}
	if _, err := r.ctrl.WaitFor(ctx, func(s session.State) bool { return !s.Loading }); err != nil {
		return err
	}
	seq, ok := r.ctrl.Submit(query)
	if !ok {
		return session.ErrStopped
	}
	r.logger.Debug("repl search", zap.Uint64("seq", seq))
	if err := r.show(); err != nil {
		return err
	}
	if _, err := r.ctrl.Await(ctx, seq); err != nil {
		return err
	}
	return r.show()
}

func (r *REPL) show() error {
	return cli.WriteSession(r.out, r.ctrl.Snapshot(), cli.OutputText, r.renderOptions())
}

func (r *REPL) listExamples() {
	examples := r.ctrl.Snapshot().Examples
	if len(examples) == 0 {
		fmt.Fprintln(r.out, "No example queries configured")
		return
	}
	fmt.Fprintln(r.out, "Try these examples:")
	for i, e := range examples {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, e)
	}
}
