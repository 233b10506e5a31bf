package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/wikictl/internal/async"
	"github.com/zjrosen/wikictl/internal/bridge"
	"github.com/zjrosen/wikictl/internal/flags"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/pubsub"
)

// exitAbandoned is the conventional status for a run stopped by SIGINT.
const exitAbandoned = 130

// readRecords returns args, or one record per non-blank stdin line when the
// only argument is "-".
func readRecords(args []string, stdin io.Reader) ([]string, error) {
	if len(args) != 1 || args[0] != "-" {
		return args, nil
	}
	var records []string
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if record := strings.TrimSpace(scanner.Text()); record != "" {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading records from stdin: %w", err)
	}
	return records, nil
}

// stream drives one bridge handler across a command's records.
type stream[T any] struct {
	cmd     *cobra.Command
	env     *env
	handler *bridge.Handler[T]
	stop    func()
	stopped chan struct{} // closed on SIGINT or SIGTERM

	failures  int
	abandoned bool
}

// newStream creates and begins a handler for command. SIGINT and SIGTERM
// cancel it until the stream ends.
func newStream[T any](cmd *cobra.Command, e *env, command string) *stream[T] {
	var events *pubsub.Broker[bridge.Event]
	reported := make(chan struct{})
	if verbose {
		events = pubsub.NewBroker[bridge.Event]()
		listener := pubsub.NewContinuousListener(context.Background(), events)
		go func() {
			defer close(reported)
			reportProgress(listener, events, cmd.ErrOrStderr())
		}()
	} else {
		close(reported)
	}

	cfg := bridge.Config{
		Command: command,
		Tracer:  e.provider.Tracer(),
	}
	if events != nil {
		cfg.Events = events
	}
	if featureFlags.Enabled(flags.FlagJournal) {
		cfg.Journal = e.db.InvocationRepository()
	}
	h := bridge.New[T](cfg)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	h.Begin(parent)
	stopped := make(chan struct{})
	stopCancel := context.AfterFunc(sigCtx, func() {
		log.Info(log.CatCmd, "Stop requested", "command", command)
		h.Cancel()
		close(stopped)
	})

	return &stream[T]{
		cmd:     cmd,
		env:     e,
		handler: h,
		stopped: stopped,
		stop: func() {
			stopCancel()
			stopSignals()
			h.End()
			if events != nil {
				events.Close()
			}
			<-reported
		},
	}
}

// run invokes op for record and emits the value. Failures are reported to
// stderr and counted; the stream keeps going. It returns false once the
// stream has been cancelled.
func (s *stream[T]) run(record string, op bridge.Operation[T], emit func(T) error) bool {
	if s.handler.Cancelled() {
		s.abandoned = true
		return false
	}
	out, err := s.handler.Invoke(record, op)
	switch {
	case err != nil:
		s.failures++
		if record != "" {
			fmt.Fprintf(s.cmd.ErrOrStderr(), "wikictl: %s: %v\n", record, err)
		} else {
			fmt.Fprintf(s.cmd.ErrOrStderr(), "wikictl: %v\n", err)
		}
	case out.Abandoned:
		s.abandoned = true
		return false
	default:
		if emit == nil {
			emit = func(v T) error { return s.env.out.Emit(v) }
		}
		if err := emit(out.Value); err != nil {
			s.failures++
			fmt.Fprintf(s.cmd.ErrOrStderr(), "wikictl: writing output: %v\n", err)
		}
	}
	return true
}

// each runs op for every record in order.
func (s *stream[T]) each(records []string, op func(record string) bridge.Operation[T]) {
	for _, record := range records {
		if !s.run(record, op(record), nil) {
			return
		}
	}
}

// finish ends the handler and turns the stream's outcome into an error.
func (s *stream[T]) finish() error {
	s.stop()
	switch {
	case s.abandoned:
		return &exitError{code: exitAbandoned, msg: "cancelled", silent: true}
	case s.failures > 0:
		return &exitError{code: 1, msg: fmt.Sprintf("%d record(s) failed", s.failures), silent: true}
	}
	return nil
}

// failedOperation settles immediately with err, so local failures are
// reported and journaled like remote ones.
func failedOperation[T any](err error) bridge.Operation[T] {
	return func(context.Context, async.Executor) *async.Future[T] {
		return async.Failed[T](err)
	}
}

// reportProgress prints one line per lifecycle event until the broker closes.
func reportProgress(listener *pubsub.ContinuousListener[bridge.Event], events *pubsub.Broker[bridge.Event], w io.Writer) {
	for {
		event, ok := listener.Next()
		if !ok {
			break
		}
		ev := event.Payload
		if event.Type.Terminal() {
			fmt.Fprintf(w, "< %s %s: %s (%s)\n", ev.Command, ev.Target, ev.State, ev.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(w, "> %s %s\n", ev.Command, ev.Target)
		}
	}
	if n := events.Dropped(); n > 0 {
		fmt.Fprintf(w, "(%d of %d progress events not shown)\n", n, events.Published())
	}
}

// runStream is the common shape of a record command: open the env, resolve
// records, then run op for each.
func runStream[T any](cmd *cobra.Command, args []string, command string,
	build func(ctx context.Context, e *env) (func(record string) bridge.Operation[T], error),
) error {
	records, err := readRecords(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records to process")
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close(cmd.Context())

	op, err := build(cmd.Context(), e)
	if err != nil {
		return err
	}

	s := newStream[T](cmd, e, command)
	s.each(records, op)
	return s.finish()
}
