package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anggasct/statum"
	"github.com/anggasct/statum/pkg/config"
	"github.com/anggasct/statum/pkg/loader"
	"github.com/anggasct/statum/pkg/observers"
)

// app carries what the subcommands share. Tests set adapter to keep state
// between invocations.
type app struct {
	files   []string
	envFile string
	deny    []string
	verbose bool

	cfg     *config.Config
	logger  *slog.Logger
	adapter statum.Adapter
	closeFn func() error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "statum",
		Short:         "Statum drives entities through finite state machines",
		Long:          `Statum loads machine definitions from YAML or JSON files, renders them and applies transitions to entities persisted in the configured backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVarP(&a.files, "file", "f", nil, "Definition files, merged in order")
	flags.StringVar(&a.envFile, "env-file", "", "Env file to read instead of .env")
	flags.StringSliceVar(&a.deny, "deny", nil, "Rules that evaluate to false; all other rules apply")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log every pipeline stage")

	root.AddCommand(
		newValidateCmd(a),
		newGraphCmd(a),
		newStateCmd(a),
		newEntitiesCmd(a),
		newHistoryCmd(a),
		newApplyCmd(a),
		newHandleCmd(a),
		newRunCmd(a),
	)
	return root
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) log(cmd *cobra.Command) (*slog.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a.logger = logger
	return logger, nil
}

func (a *app) store(ctx context.Context, cmd *cobra.Command) (statum.Adapter, error) {
	if a.adapter != nil {
		return a.adapter, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := a.log(cmd)
	if err != nil {
		return nil, err
	}
	adapter, closeFn, err := cfg.OpenAdapter(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.adapter, a.closeFn = adapter, closeFn
	return adapter, nil
}

func (a *app) close() error {
	if a.closeFn == nil {
		return nil
	}
	err := a.closeFn()
	a.closeFn = nil
	return err
}

func (a *app) definition() (*loader.Definition, error) {
	if len(a.files) == 0 {
		return nil, fmt.Errorf("no definition file given, use --file")
	}
	defs := make([]*loader.Definition, 0, len(a.files))
	for _, path := range a.files {
		def, err := loader.LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return loader.Merge(defs...)
}

// registry resolves every referenced name: rules apply unless denied and
// commands do nothing, so definitions can be exercised without their code
func (a *app) registry(def *loader.Definition) *statum.Registry {
	denied := make(map[string]bool, len(a.deny))
	for _, name := range a.deny {
		denied[name] = true
	}
	reg := statum.NewRegistry()
	null := func(any) (statum.Command, error) { return statum.NullCommand{}, nil }
	for _, t := range def.Transitions {
		for _, name := range t.Rules {
			if _, ok := reg.Rule(name); ok {
				continue
			}
			result := !denied[name]
			reg.RegisterRule(name, func(any) (statum.Rule, error) {
				return statum.RuleFunc(func() (bool, error) { return result, nil }), nil
			})
		}
		for _, name := range t.Commands {
			if _, ok := reg.Command(name); !ok {
				reg.RegisterCommand(name, null)
			}
		}
	}
	for _, s := range def.States {
		for _, name := range append(append([]string{}, s.Entry...), s.Exit...) {
			if _, ok := reg.Command(name); !ok {
				reg.RegisterCommand(name, null)
			}
		}
	}
	return reg
}

// machine builds the machine of the definition bound to entity
func (a *app) machine(cmd *cobra.Command, entity string) (*statum.StateMachine, error) {
	if entity == "" {
		return nil, fmt.Errorf("no entity given, use --entity")
	}
	def, err := a.definition()
	if err != nil {
		return nil, err
	}
	bp, err := def.Blueprint()
	if err != nil {
		return nil, err
	}
	logger, err := a.log(cmd)
	if err != nil {
		return nil, err
	}
	adapter, err := a.store(cmd.Context(), cmd)
	if err != nil {
		return nil, err
	}

	opts := []statum.Option{
		statum.WithRegistry(a.registry(def)),
		statum.WithLogger(logger),
	}
	if a.verbose {
		opts = append(opts, statum.WithHooks(observers.NewLoggingObserver(logger, slog.LevelInfo).Hooks()))
	}
	c := statum.NewContext(cmd.Context(), statum.NewIdentifier(def.Name, entity), statum.WithAdapter(adapter))
	return bp.NewMachine(c, opts...)
}

// machineFor loads the definition into a machine bound to a scratch entity
// held in memory
func (a *app) machineFor(cmd *cobra.Command, def *loader.Definition) (*statum.StateMachine, error) {
	bp, err := def.Blueprint()
	if err != nil {
		return nil, err
	}
	c := statum.NewContext(cmd.Context(), statum.NewIdentifier(def.Name, ""))
	return bp.NewMachine(c, statum.WithRegistry(a.registry(def)))
}
