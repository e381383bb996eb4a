package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anggasct/statum"
)

func report(cmd *cobra.Command, m *statum.StateMachine, ok bool, what string) error {
	current, err := m.CurrentState()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s not performed, state is %s\n", what, current.Name())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s performed, state is %s\n", what, current.Name())
	return nil
}

func newApplyCmd(a *app) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "apply <transition>",
		Short: "Apply a transition by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.machine(cmd, entity)
			if err != nil {
				return err
			}
			ok, err := m.Apply(args[0])
			if err != nil {
				return err
			}
			return report(cmd, m, ok, "transition "+args[0])
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	return cmd
}

func newHandleCmd(a *app) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "handle <event>",
		Short: "Handle a trigger event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.machine(cmd, entity)
			if err != nil {
				return err
			}
			ok, err := m.Handle(args[0])
			if err != nil {
				return err
			}
			return report(cmd, m, ok, "event "+args[0])
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		entity   string
		complete bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform the first allowed transition of the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.machine(cmd, entity)
			if err != nil {
				return err
			}
			if complete {
				n, err := m.RunToCompletion()
				if err != nil {
					return err
				}
				current, err := m.CurrentState()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d transitions performed, state is %s\n", n, current.Name())
				return nil
			}
			ok, err := m.Run()
			if err != nil {
				return err
			}
			return report(cmd, m, ok, "run")
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	cmd.Flags().BoolVar(&complete, "complete", false, "Keep running until no transition is allowed")
	return cmd
}
