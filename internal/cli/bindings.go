package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/titon/framework/app"
	"github.com/titon/framework/depository"
)

// BindingsResult lists the registrations of a depository.
type BindingsResult struct {
	Bindings []depository.Binding `json:"bindings" yaml:"bindings"`
}

func (r BindingsResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tKIND\tTARGET")
	for _, b := range r.Bindings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Key, b.Kind, b.Target)
	}
	return tw.Flush()
}

// NewBindingsCommand creates the bindings command.
func NewBindingsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "List every registered key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app.Application, f *OutputFormatter) error {
				return f.Success(BindingsResult{Bindings: a.Container().Bindings()})
			})
		},
	}
}

// GraphResult holds a rendered dependency graph.
type GraphResult struct {
	Format string `json:"format" yaml:"format"`
	Graph  string `json:"graph" yaml:"graph"`
}

func (r GraphResult) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, r.Graph)
	return err
}

// DependencyResult describes the neighbourhood of one key.
type DependencyResult struct {
	Key          string   `json:"key" yaml:"key"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Dependents   []string `json:"dependents" yaml:"dependents"`
	Transitive   []string `json:"transitive" yaml:"transitive"`
}

func (r DependencyResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "KEY\t%s\n", r.Key)
	fmt.Fprintf(tw, "DEPENDENCIES\t%s\n", strings.Join(r.Dependencies, ", "))
	fmt.Fprintf(tw, "DEPENDENTS\t%s\n", strings.Join(r.Dependents, ", "))
	fmt.Fprintf(tw, "TRANSITIVE\t%s\n", strings.Join(r.Transitive, ", "))
	return tw.Flush()
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dot bool
		key string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph",
		Long: `Print the dependency graph of the registered items.

With --dot the graph is written in Graphviz DOT format. With --key only the
dependencies and dependents of that key are listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := "text"
			if dot {
				format = "dot"
			}

			return rootOpts.withApp(cmd, func(a *app.Application, f *OutputFormatter) error {
				d := a.Container()

				if key != "" {
					if !d.IsRegistered(key) {
						err := depository.NotFoundError{Key: key, Available: d.Keys()}
						_ = f.Error(ErrCodeNotFound, err.Error())
						return WrapExitError(ExitFailure, "graph", err)
					}
					return f.Success(DependencyResult{
						Key:          key,
						Dependencies: d.Dependencies(key),
						Dependents:   d.Dependents(key),
						Transitive:   d.TransitiveDependencies(key),
					})
				}

				var buf bytes.Buffer
				if err := d.WriteGraph(&buf, format); err != nil {
					return WrapExitError(ExitFailure, "write graph", err)
				}
				return f.Success(GraphResult{Format: format, Graph: buf.String()})
			})
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "write Graphviz DOT")
	cmd.Flags().StringVar(&key, "key", "", "list the dependencies and dependents of one key")

	return cmd
}

// ValidateResult reports the outcome of a cycle check.
type ValidateResult struct {
	Valid    bool     `json:"valid" yaml:"valid"`
	Bindings int      `json:"bindings" yaml:"bindings"`
	Order    []string `json:"order" yaml:"order"`
}

func (r ValidateResult) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "OK: %d bindings, no cycles\n", r.Bindings); err != nil {
		return err
	}
	for i, key := range r.Order {
		if _, err := fmt.Fprintf(w, "%4d. %s\n", i+1, key); err != nil {
			return err
		}
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the dependency graph for cycles and print the construction order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app.Application, f *OutputFormatter) error {
				d := a.Container()
				if err := d.Validate(); err != nil {
					_ = f.Error(ErrCodeCycle, err.Error())
					return WrapExitError(ExitFailure, "validate", err)
				}
				order, err := d.Order()
				if err != nil {
					_ = f.Error(ErrCodeCycle, err.Error())
					return WrapExitError(ExitFailure, "validate", err)
				}
				return f.Success(ValidateResult{Valid: true, Bindings: len(d.Bindings()), Order: order})
			})
		},
	}
}
