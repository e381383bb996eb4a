package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/anggasct/statum"
)

func newStateCmd(a *app) *cobra.Command {
	var (
		entity string
		add    bool
	)
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the current state of an entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.machine(cmd, entity)
			if err != nil {
				return err
			}
			if add {
				c := m.Context().(*statum.EntityContext)
				if _, err := c.Add(""); err != nil {
					return err
				}
			}
			current, err := m.CurrentState()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), current.Name())
			return nil
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	cmd.Flags().BoolVar(&add, "add", false, "Persist the initial state if the entity is unknown")
	return cmd
}

func newEntitiesCmd(a *app) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List the persisted entities of the machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.definition()
			if err != nil {
				return err
			}
			adapter, err := a.store(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			ids, err := adapter.EntityIDs(cmd.Context(), def.Name, state)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only entities currently in this state")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the transition history of an entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.machine(cmd, entity)
			if err != nil {
				return err
			}
			records, err := m.Context().(*statum.EntityContext).History()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSTATE\tTRANSITION\tMESSAGE")
			for _, r := range records {
				message := r.Message
				if r.Exception {
					message = "FAILED: " + message
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Timestamp.Format(time.RFC3339), r.State, r.Transition, message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	return cmd
}
