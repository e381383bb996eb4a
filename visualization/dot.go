// Package visualization renders machines as Graphviz diagrams
package visualization

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/anggasct/statum"
)

// Graph is anything that exposes states and transitions. Both
// *statum.StateMachine (expanded transitions) and *statum.Blueprint
// (as declared, pattern states included) satisfy it.
type Graph interface {
	States() []*statum.State
	Transitions() []*statum.Transition
}

// DOTGenerator generates Graphviz DOT format representations of machines
type DOTGenerator struct {
	graph   Graph
	options DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	Name           string
	ShowEvents     bool
	ShowRules      bool
	ShowCommands   bool
	RankDirection  string // "TB", "LR", "BT", "RL"
	NodeShape      string
	HighlightState string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		Name:          "StateMachine",
		ShowEvents:    true,
		ShowRules:     true,
		ShowCommands:  true,
		RankDirection: "LR",
		NodeShape:     "box",
	}
}

// NewDOTGenerator creates a new DOT generator for the given graph
func NewDOTGenerator(graph Graph, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.Name == "" {
		opts.Name = "StateMachine"
	}
	return &DOTGenerator{graph: graph, options: opts}
}

// Generate creates a DOT representation of the machine
func (g *DOTGenerator) Generate() (string, error) {
	if g.graph == nil {
		return "", fmt.Errorf("nothing to render")
	}
	var dot strings.Builder

	fmt.Fprintf(&dot, "digraph %s {\n", quote(g.options.Name))
	if g.options.RankDirection != "" {
		fmt.Fprintf(&dot, "  rankdir=%s;\n", g.options.RankDirection)
	}
	fmt.Fprintf(&dot, "  node [shape=%s];\n", g.nodeShape())
	dot.WriteString("  edge [fontsize=10];\n\n")

	dot.WriteString("  // States\n")
	for _, s := range g.graph.States() {
		g.writeState(&dot, s)
	}

	dot.WriteString("\n  // Transitions\n")
	for _, t := range g.graph.Transitions() {
		g.writeTransition(&dot, t)
	}

	dot.WriteString("}\n")
	return dot.String(), nil
}

func (g *DOTGenerator) nodeShape() string {
	if g.options.NodeShape == "" {
		return "box"
	}
	return g.options.NodeShape
}

func (g *DOTGenerator) writeState(dot *strings.Builder, s *statum.State) {
	shape := g.nodeShape()
	style := "filled"
	fillColor := "lightblue"
	label := s.Name()

	switch {
	case s.IsInitial():
		fillColor = "lightgreen"
		label += "\\n(initial)"
	case s.IsFinal():
		shape = "doublecircle"
		fillColor = "lightcoral"
	case s.IsRegex():
		style = "dashed"
		fillColor = "white"
	}
	if s.Name() == g.options.HighlightState {
		style += ",bold"
		fillColor = "gold"
	}

	fmt.Fprintf(dot, "  %s [shape=%s style=%s fillcolor=%s label=%s];\n",
		quote(s.Name()), shape, quote(style), fillColor, quote(label))
}

func (g *DOTGenerator) writeTransition(dot *strings.Builder, t *statum.Transition) {
	var parts []string
	if g.options.ShowEvents && t.HasEvent() {
		parts = append(parts, t.Event())
	}
	if g.options.ShowRules && len(t.Rules()) > 0 {
		parts = append(parts, "["+strings.Join(t.Rules(), " && ")+"]")
	}
	if g.options.ShowCommands && len(t.Commands()) > 0 {
		parts = append(parts, "/ "+strings.Join(t.Commands(), ", "))
	}

	fmt.Fprintf(dot, "  %s -> %s", quote(t.From().Name()), quote(t.To().Name()))
	if len(parts) > 0 {
		fmt.Fprintf(dot, " [label=%s]", quote(strings.Join(parts, " ")))
	}
	dot.WriteString(";\n")
}

// quote renders s as a DOT string literal. Backslashes are kept so labels
// can carry DOT escapes such as \n.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(content), 0o644)
}

// GenerateSVG renders the graph through the Graphviz dot binary
func (g *DOTGenerator) GenerateSVG(ctx context.Context) (string, error) {
	dotContent, err := g.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}
	return out.String(), nil
}
