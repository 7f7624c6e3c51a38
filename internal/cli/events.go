package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/titon/framework/app"
	"github.com/titon/framework/event"
)

// ObserverInfo describes one subscribed observer.
type ObserverInfo struct {
	ID       string `json:"id" yaml:"id"`
	Priority int    `json:"priority" yaml:"priority"`
	Mode     string `json:"mode" yaml:"mode"`
	Once     bool   `json:"once" yaml:"once"`
}

// EventInfo lists the observers of an event in call order.
type EventInfo struct {
	Event     string         `json:"event" yaml:"event"`
	Observers []ObserverInfo `json:"observers" yaml:"observers"`
}

// EventsResult lists every event with observers.
type EventsResult struct {
	Events []EventInfo `json:"events" yaml:"events"`
}

func (r EventsResult) WriteText(w io.Writer) error {
	if len(r.Events) == 0 {
		_, err := fmt.Fprintln(w, "no observers")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tOBSERVER\tPRIORITY\tMODE\tONCE")
	for _, e := range r.Events {
		for _, o := range e.Observers {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\n", e.Event, o.ID, o.Priority, o.Mode, o.Once)
		}
	}
	return tw.Flush()
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List events and their observers in call order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app.Application, f *OutputFormatter) error {
				return f.Success(describeEvents(a.Events()))
			})
		},
	}
}

func describeEvents(em *event.Emitter) EventsResult {
	result := EventsResult{Events: []EventInfo{}}
	for _, name := range em.EventNames() {
		info := EventInfo{Event: name}
		for _, o := range em.SortedObservers(name) {
			info.Observers = append(info.Observers, ObserverInfo{
				ID:       o.ID(),
				Priority: o.Priority(),
				Mode:     o.Mode().String(),
				Once:     o.IsOnce(),
			})
		}
		result.Events = append(result.Events, info)
	}
	return result
}

// EmittedEvent summarizes an emitted event.
type EmittedEvent struct {
	Event     string         `json:"event" yaml:"event"`
	ID        string         `json:"id" yaml:"id"`
	Stopped   bool           `json:"stopped" yaml:"stopped"`
	State     any            `json:"state,omitempty" yaml:"state,omitempty"`
	CallStack []string       `json:"call_stack" yaml:"call_stack"`
	Data      map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// EmitResult lists the emitted events sorted by name.
type EmitResult struct {
	Events []EmittedEvent `json:"events" yaml:"events"`
}

func (r EmitResult) WriteText(w io.Writer) error {
	for _, e := range r.Events {
		status := "completed"
		if e.Stopped {
			status = fmt.Sprintf("stopped (state: %v)", e.State)
		}
		if _, err := fmt.Fprintf(w, "%s %s: %s [%s]\n", e.Event, e.ID, status, strings.Join(e.CallStack, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "emit <event> [args...]",
		Short: "Emit an event with string arguments",
		Long: `Emit an event to its observers and print the resulting events.

The event may be a space separated list or a wildcard such as "app.*".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app.Application, f *OutputFormatter) error {
				params := make([]any, 0, len(args)-1)
				for _, arg := range args[1:] {
					params = append(params, arg)
				}

				events, err := a.Events().EmitMany(commandContext(cmd), []string{args[0]}, params...)
				if err != nil {
					_ = f.Error(ErrCodeEmit, err.Error())
					return WrapExitError(ExitFailure, "emit", err)
				}

				return f.Success(summarize(events))
			})
		},
	}
}

func summarize(events map[string]*event.Event) EmitResult {
	result := EmitResult{Events: make([]EmittedEvent, 0, len(events))}
	for name, ev := range events {
		e := EmittedEvent{
			Event:     name,
			ID:        ev.ID(),
			Stopped:   ev.IsStopped(),
			CallStack: ev.CallStack(),
		}
		if e.Stopped {
			e.State = ev.State()
		}
		if data := ev.Data(); len(data) > 0 {
			e.Data = data
		}
		result.Events = append(result.Events, e)
	}

	sort.Slice(result.Events, func(i, j int) bool {
		return result.Events[i].Event < result.Events[j].Event
	})
	return result
}
