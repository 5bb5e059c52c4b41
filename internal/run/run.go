// Package run implements the top-level orchestrator: it builds Formulas
// from CLI arguments, launches one scheduler+supervisor task per channel,
// installs signal handlers, enforces the global timeout, drives graceful
// then forceful shutdown, reaps orphans, and computes the process exit
// code. Grounded on the teacher's cmd/multirun's fan-out/signal-forwarding
// shape, generalized with golang.org/x/sync/errgroup for the per-channel
// task group (as internal/index/build.go does for its own fan-out).
package run

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"multiplex/internal/bus"
	"multiplex/internal/emit"
	"multiplex/internal/formula"
	"multiplex/internal/logging"
	"multiplex/internal/schedule"
	"multiplex/internal/supervisor"
)

// Default grace period between escalating termination signals.
const DefaultGrace = 5 * time.Second

// Options configures a Controller.
type Options struct {
	Timeout      time.Duration // 0 disables the global timeout
	TimeMode     emit.TimeMode
	ColorEnabled bool
	Grace        time.Duration // 0 means DefaultGrace
	Out          io.Writer
	Logger       *slog.Logger
}

// Controller is the top-level run orchestrator for one invocation.
type Controller struct {
	opts    Options
	bus     *bus.Bus
	emitter *emit.Emitter
	sched   *schedule.Scheduler
	sup     *supervisor.Supervisor
	logger  *slog.Logger
	start   time.Time
}

// New constructs a Controller. args' formulas are not parsed yet; call Run.
func New(opts Options) *Controller {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	start := time.Now()
	e := emit.New(opts.Out, opts.ColorEnabled, opts.TimeMode, start)
	b := bus.New()
	logger := logging.Default(opts.Logger).With("component", "run")
	return &Controller{
		opts:    opts,
		bus:     b,
		emitter: e,
		sched:   schedule.New(b),
		sup:     supervisor.New(b, e, opts.Grace, logger),
		logger:  logger,
		start:   start,
	}
}

// reason records why shutdown was initiated, and the exit code it implies.
// The first reason recorded wins; later requests (a signal or timeout that
// arrives during shutdown) do not change it.
type reason struct {
	mu      sync.Mutex
	set     bool
	kind    string // "signal", "timeout", "end", "normal"
	code    int
}

func (r *reason) trySet(kind string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return
	}
	r.set = true
	r.kind, r.code = kind, code
}

func (r *reason) get() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kind, r.code
}

// Run parses args into Formulas, launches and supervises every channel,
// and blocks until shutdown completes. It returns the process exit code.
func (c *Controller) Run(ctx context.Context, args []string) int {
	formulas, err := parseAll(args)
	if err != nil {
		c.emitter.Note("*", err.Error())
		return 2
	}

	assignNames(formulas)

	if err := validate(formulas); err != nil {
		c.emitter.Note("*", err.Error())
		return 2
	}

	channels := make([]*supervisor.Channel, len(formulas))
	byName := make(map[string]*supervisor.Channel, len(formulas))
	for i, f := range formulas {
		ch := supervisor.NewChannel(f.Name, f)
		channels[i] = ch
		byName[f.Name] = ch
	}

	cancelCh := make(chan struct{})
	var closeCancel sync.Once
	var rsn reason

	requestShutdown := func(kind string, code int) {
		rsn.trySet(kind, code)
		closeCancel.Do(func() { close(cancelCh) })
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			c.emitter.Note("*", "interrupt")
			requestShutdown("signal", 130)
		}
	}()

	if c.opts.Timeout > 0 {
		timer := time.AfterFunc(c.opts.Timeout, func() {
			c.emitter.Note("*", "timeout")
			requestShutdown("timeout", 124)
		})
		defer timer.Stop()
	}

	g, _ := errgroup.WithContext(ctx)
	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			if !c.sched.Await(cancelCh, ch.Formula) {
				return nil // cancelled before start; channel stays PENDING
			}
			c.sup.Spawn(ch, func() {
				requestShutdown("end", ch.ExitCode())
			})
			<-ch.Done()
			return nil
		})
	}

	allEnded := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(allEnded)
	}()

	select {
	case <-allEnded:
		requestShutdown("normal", normalExitCode(channels))
	case <-cancelCh:
	}

	// Repeatedly sweep for channels still STARTED (a channel may start in
	// the brief race between the shutdown trigger and this point) until
	// every per-channel worker has returned.
	terminated := make(map[*supervisor.Channel]bool, len(channels))
	for {
		c.shutdownPass(channels, terminated)
		select {
		case <-allEnded:
			goto drained
		case <-time.After(20 * time.Millisecond):
		}
	}
drained:

	kind, code := rsn.get()
	c.logger.Info("run complete", "reason", kind, "exit_code", code)
	return code
}

// shutdownPass terminates every channel that is STARTED and not already
// being terminated, emitting a summary note per such channel, then makes a
// best-effort orphan sweep for each. Blocks until this pass's channels are
// fully terminated.
func (c *Controller) shutdownPass(channels []*supervisor.Channel, terminated map[*supervisor.Channel]bool) {
	var wg sync.WaitGroup
	for _, ch := range channels {
		if terminated[ch] || ch.State() != supervisor.Started {
			continue
		}
		terminated[ch] = true
		ch := ch
		c.emitter.Note(ch.Name, "terminating")
		wg.Add(1)
		go func() {
			defer wg.Done()
			pgid := ch.PID()
			c.sup.Terminate(ch)
			supervisor.ReapOrphans(pgid, c.logger)
		}()
	}
	wg.Wait()
}

// normalExitCode implements spec.md §4.8 step 5's fallback policy: 0 iff
// every channel exited 0, else 1. Only reached when no channel carries the
// END action (an END channel's own completion already supplies the reason).
func normalExitCode(channels []*supervisor.Channel) int {
	for _, ch := range channels {
		if ch.State() == supervisor.Ended && ch.ExitCode() != 0 {
			return 1
		}
	}
	return 0
}

func parseAll(args []string) ([]*formula.Formula, error) {
	formulas := make([]*formula.Formula, 0, len(args))
	for _, arg := range args {
		f, err := formula.Parse(arg)
		if err != nil {
			return nil, err
		}
		formulas = append(formulas, f)
	}
	return formulas, nil
}

// assignNames fills in auto-assigned names (A, B, C, ..., AA, AB, ...) for
// formulas with no user-provided name, skipping any name already taken.
func assignNames(formulas []*formula.Formula) {
	used := make(map[string]bool)
	for _, f := range formulas {
		if f.Name != "" {
			used[f.Name] = true
		}
	}
	n := 0
	for _, f := range formulas {
		if f.Name != "" {
			continue
		}
		for {
			candidate := letterName(n)
			n++
			if !used[candidate] {
				f.Name = candidate
				used[candidate] = true
				break
			}
		}
	}
}

// letterName renders the n'th (0-based) spreadsheet-style column name:
// 0->A, 1->B, ..., 25->Z, 26->AA, 27->AB, ...
func letterName(n int) string {
	var b []byte
	n++
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// validate checks name uniqueness, dependency target existence, and
// rejects pure END->END dependency cycles (spec.md §3 invariants).
func validate(formulas []*formula.Formula) error {
	names := make(map[string]bool, len(formulas))
	for _, f := range formulas {
		if names[f.Name] {
			return fmt.Errorf("run: duplicate channel name %q", f.Name)
		}
		names[f.Name] = true
	}

	endEdges := make(map[string][]string)
	for _, f := range formulas {
		for _, dep := range f.Deps {
			if dep.Target == "" {
				continue
			}
			if !names[dep.Target] {
				return fmt.Errorf("run: %q depends on unknown channel %q", f.Name, dep.Target)
			}
			if dep.On == formula.End {
				endEdges[f.Name] = append(endEdges[f.Name], dep.Target)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	visit := make(map[string]int, len(formulas))
	var order []string
	for _, f := range formulas {
		order = append(order, f.Name)
	}
	sort.Strings(order) // deterministic traversal order for error messages

	var dfs func(name string) error
	dfs = func(name string) error {
		visit[name] = gray
		for _, next := range endEdges[name] {
			switch visit[next] {
			case gray:
				return fmt.Errorf("run: dependency cycle detected: %q -> %q", name, next)
			case white:
				if err := dfs(next); err != nil {
					return err
				}
			}
		}
		visit[name] = black
		return nil
	}
	for _, name := range order {
		if visit[name] == white {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}
	return nil
}
