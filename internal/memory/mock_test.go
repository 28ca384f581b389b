package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// mockOracle is a scripted oracle.Client for pipeline tests. Each pipeline
// stage can be overridden independently; unset stages return canned
// responses so tests only script what they assert on.
type mockOracle struct {
	mu    sync.Mutex
	calls []mockCall

	summarizeFn func(input string) (string, error)
	gateFn      func(input string) (string, error)
	mergeFn     func(input string) (string, error)
	composeFn   func(input string) (string, error)
	titleFn     func(input string) (string, error)
}

type mockCall struct {
	stage string
	input string
}

func (m *mockOracle) Complete(ctx context.Context, instruction, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stage := classifyInstruction(instruction)
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{stage: stage, input: input})
	m.mu.Unlock()

	switch stage {
	case "summarize":
		if m.summarizeFn != nil {
			return m.summarizeFn(input)
		}
		return "summary: " + firstLine(input), nil
	case "gate":
		if m.gateFn != nil {
			return m.gateFn(input)
		}
		return "IRRELEVANT 0.9", nil
	case "merge":
		if m.mergeFn != nil {
			return m.mergeFn(input)
		}
		return "merged: " + firstLine(input), nil
	case "compose":
		if m.composeFn != nil {
			return m.composeFn(input)
		}
		return "body: " + firstLine(input), nil
	case "title":
		if m.titleFn != nil {
			return m.titleFn(input)
		}
		return "Test Topic", nil
	default:
		return "", fmt.Errorf("unexpected instruction: %.60s", instruction)
	}
}

// callsFor returns the inputs recorded for one stage.
func (m *mockOracle) callsFor(stage string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c.stage == stage {
			out = append(out, c.input)
		}
	}
	return out
}

func classifyInstruction(instruction string) string {
	switch {
	case instruction == summarizeInstruction:
		return "summarize"
	case instruction == gateInstruction:
		return "gate"
	case instruction == composeInstruction:
		return "compose"
	case instruction == titleInstruction:
		return "title"
	case strings.Contains(instruction, "Produce the updated article body"):
		return "merge"
	default:
		return "unknown"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
