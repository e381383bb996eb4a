package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anggasct/statum/visualization"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		output   string
		format   string
		expanded bool
		entity   string
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the machine as a Graphviz diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.definition()
			if err != nil {
				return err
			}
			bp, err := def.Blueprint()
			if err != nil {
				return err
			}

			options := visualization.DefaultDOTOptions()
			options.Name = def.Name
			var graph visualization.Graph = bp
			switch {
			case entity != "":
				m, err := a.machine(cmd, entity)
				if err != nil {
					return err
				}
				current, err := m.CurrentState()
				if err != nil {
					return err
				}
				options.HighlightState = current.Name()
				graph = m
			case expanded:
				m, err := a.machineFor(cmd, def)
				if err != nil {
					return err
				}
				graph = m
			}

			generator := visualization.NewDOTGenerator(graph, options)
			var content string
			switch format {
			case "dot":
				content, err = generator.Generate()
			case "svg":
				content, err = generator.GenerateSVG(cmd.Context())
			default:
				return fmt.Errorf("unknown format %q: must be dot or svg", format)
			}
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), content)
				return err
			}
			return os.WriteFile(output, []byte(content), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "dot", "Output format: dot or svg")
	cmd.Flags().BoolVar(&expanded, "expanded", false, "Expand pattern transitions against the declared states")
	cmd.Flags().StringVar(&entity, "entity", "", "Highlight the current state of this entity")
	return cmd
}
