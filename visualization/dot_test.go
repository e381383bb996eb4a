package visualization_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anggasct/statum"
	"github.com/anggasct/statum/visualization"
)

func buildBlueprint(t *testing.T) *statum.Blueprint {
	t.Helper()
	bp, err := statum.NewBuilder("job").
		State("idle").Initial().To("running").On("start").When("HasWorker").Do("Spawn", "Log").
		State("running").To("stopped").On("stop").
		State("stopped").Final().
		State("regex:/^(idle|running)$/").To("failed").On("crash").
		Build()
	if err != nil {
		t.Fatalf("Failed to build blueprint: %v", err)
	}
	return bp
}

func TestDOTGeneration(t *testing.T) {
	generator := visualization.NewDOTGenerator(buildBlueprint(t))

	dotContent, err := generator.Generate()
	if err != nil {
		t.Fatalf("Failed to generate DOT: %v", err)
	}

	for _, want := range []string{
		`digraph "StateMachine"`,
		`"idle" [shape=box style="filled" fillcolor=lightgreen label="idle\n(initial)"]`,
		`"stopped" [shape=doublecircle`,
		`"regex:/^(idle|running)$/" [shape=box style="dashed"`,
		`"idle" -> "running" [label="start [HasWorker] / Spawn, Log"]`,
		`"running" -> "stopped" [label="stop"]`,
	} {
		if !strings.Contains(dotContent, want) {
			t.Errorf("DOT content should contain %s", want)
		}
	}

	t.Logf("Generated DOT content:\n%s", dotContent)
}

func TestDOTGenerationFromMachine(t *testing.T) {
	bp := buildBlueprint(t)
	reg := statum.NewRegistry().
		RegisterRule("HasWorker", func(any) (statum.Rule, error) { return statum.TrueRule{}, nil }).
		RegisterCommand("Spawn", func(any) (statum.Command, error) { return statum.NullCommand{}, nil }).
		RegisterCommand("Log", func(any) (statum.Command, error) { return statum.NullCommand{}, nil })

	c := statum.NewContext(context.Background(), statum.NewIdentifier("job", "1"))
	m, err := bp.NewMachine(c, statum.WithRegistry(reg))
	if err != nil {
		t.Fatalf("Failed to create machine: %v", err)
	}

	options := visualization.DefaultDOTOptions()
	options.Name = "job"
	options.ShowRules = false
	options.ShowCommands = false
	options.HighlightState = "idle"
	dotContent, err := visualization.NewDOTGenerator(m, options).Generate()
	if err != nil {
		t.Fatalf("Failed to generate DOT: %v", err)
	}

	if !strings.Contains(dotContent, `"idle" -> "failed" [label="crash"]`) {
		t.Error("pattern transitions should be expanded for idle")
	}
	if !strings.Contains(dotContent, `"running" -> "failed" [label="crash"]`) {
		t.Error("pattern transitions should be expanded for running")
	}
	if strings.Contains(dotContent, "regex:") {
		t.Error("a machine should not render pattern states")
	}
	if strings.Contains(dotContent, "HasWorker") {
		t.Error("rules should be hidden")
	}
	if !strings.Contains(dotContent, `style="filled,bold" fillcolor=gold`) {
		t.Error("the highlighted state should be bold")
	}
}

func TestDOTGenerator_GenerateToFile(t *testing.T) {
	generator := visualization.NewDOTGenerator(buildBlueprint(t))

	path := filepath.Join(t.TempDir(), "machine.dot")
	if err := generator.GenerateToFile(path); err != nil {
		t.Fatalf("Failed to generate DOT file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read DOT file: %v", err)
	}
	if !strings.HasPrefix(string(data), "digraph") {
		t.Error("DOT file should start with the graph declaration")
	}
}

func TestSVGGeneration(t *testing.T) {
	if _, err := exec.LookPath("dot"); err != nil {
		t.Skip("graphviz is not installed")
	}
	generator := visualization.NewDOTGenerator(buildBlueprint(t))

	svgContent, err := generator.GenerateSVG(context.Background())
	if err != nil {
		t.Fatalf("Failed to generate SVG: %v", err)
	}
	if !strings.Contains(svgContent, "<svg") {
		t.Error("Content should be valid SVG")
	}
}

func TestQuoting(t *testing.T) {
	s := statum.NewState(`say "hi"`, statum.AsInitial())
	bp := statum.NewBlueprint("quotes", []*statum.State{s}, nil)

	dotContent, err := visualization.NewDOTGenerator(bp).Generate()
	if err != nil {
		t.Fatalf("Failed to generate DOT: %v", err)
	}
	if !strings.Contains(dotContent, `"say \"hi\""`) {
		t.Errorf("state names should be escaped, got:\n%s", dotContent)
	}
}
