package agentreact_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gurpartap/jobagent/adapters/modelopenai"
	"github.com/Gurpartap/jobagent/adapters/modeltest"
	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/agentreact"
)

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := agentreact.New(agentreact.Config{Tools: executor{}}); !errors.Is(err, agentreact.ErrMissingModel) {
		t.Fatalf("expected ErrMissingModel, got %v", err)
	}
	if _, err := agentreact.New(agentreact.Config{Model: modeltest.NewScriptedModel()}); !errors.Is(err, agentreact.ErrMissingToolExecutor) {
		t.Fatalf("expected ErrMissingToolExecutor, got %v", err)
	}
}

func TestExecute_FinalAnswerEndsTurn(t *testing.T) {
	t.Parallel()

	model := modeltest.NewScriptedModel(modeltest.Text("hello"))
	loop, events := newLoop(t, model, executor{}, nil, false)
	state := userState("hi")

	result, err := loop.Execute(context.Background(), state, agent.EngineInput{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.StopReason != agent.StopReasonFinalAnswer || result.Output != "hello" || result.Steps != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Messages) != 3 || !reflect.DeepEqual(result.Messages[:2], state.Messages) {
		t.Fatalf("result must extend input messages: %+v", result.Messages)
	}
	wantTypes := []agent.EventType{agent.EventTypeAssistantMessage, agent.EventTypeCompleted}
	if got := events.Types(); !reflect.DeepEqual(got, wantTypes) {
		t.Fatalf("unexpected events: got=%v want=%v", got, wantTypes)
	}
}

func TestExecute_ToolResultsFollowRequestOrder(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		parallel bool
	}{{name: "sequential"}, {name: "parallel", parallel: true}} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Earlier calls sleep longer so parallel completion order is reversed.
			slow := func(delay time.Duration, content string) handler {
				return func(ctx context.Context, _ map[string]any) (string, error) {
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return "", ctx.Err()
					}
					return content, nil
				}
			}
			tools := executor{
				"a": slow(30*time.Millisecond, "A"),
				"b": slow(15*time.Millisecond, "B"),
				"c": slow(0, "C"),
			}
			model := modeltest.NewScriptedModel(
				modeltest.Calls(call("1", "a", nil), call("2", "b", nil), call("3", "c", nil)),
				modeltest.Text("done"),
			)
			loop, events := newLoop(t, model, tools, nil, tc.parallel)

			result, err := loop.Execute(context.Background(), userState("go"), agent.EngineInput{Tools: definitions("a", "b", "c")})
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			toolMessages := result.Messages[3:6]
			for i, want := range []string{"A", "B", "C"} {
				if toolMessages[i].Role != agent.RoleTool || toolMessages[i].Content != want {
					t.Fatalf("tool message[%d] mismatch: %+v", i, toolMessages[i])
				}
				if toolMessages[i].ToolCallID != []string{"1", "2", "3"}[i] {
					t.Fatalf("tool message[%d] call id mismatch: %+v", i, toolMessages[i])
				}
			}
			if model.Calls() != 2 {
				t.Fatalf("unexpected model calls: %d", model.Calls())
			}
			wantTypes := []agent.EventType{
				agent.EventTypeAssistantMessage,
				agent.EventTypeToolCall, agent.EventTypeToolCall, agent.EventTypeToolCall,
				agent.EventTypeToolResult, agent.EventTypeToolResult, agent.EventTypeToolResult,
				agent.EventTypeAssistantMessage,
				agent.EventTypeCompleted,
			}
			if got := events.Types(); !reflect.DeepEqual(got, wantTypes) {
				t.Fatalf("unexpected events: got=%v want=%v", got, wantTypes)
			}
		})
	}
}

func TestExecute_PolicyStopSkipsFurtherModelCalls(t *testing.T) {
	t.Parallel()

	model := modeltest.NewScriptedModel(
		modeltest.Calls(call("1", "lookup", nil), call("2", "launch", nil)),
		modeltest.Text("must not be requested"),
	)
	var seen []agent.ToolResult
	stop := agentreact.PolicyFunc(func(calls []agent.ToolCall, results []agent.ToolResult) agentreact.Decision {
		seen = append(seen, results...)
		for _, c := range calls {
			if c.Name == "launch" {
				return agentreact.Decision{Stop: true, Output: "launched X", Outputs: map[string]any{"run_id": "X"}}
			}
		}
		return agentreact.Decision{}
	})
	loop, events := newLoop(t, model, executor{"lookup": echo("facts"), "launch": echo("X")}, stop, false)

	result, err := loop.Execute(context.Background(), userState("start"), agent.EngineInput{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if model.Calls() != 1 {
		t.Fatalf("policy stop must not re-query the model, calls=%d", model.Calls())
	}
	if result.StopReason != agent.StopReasonDelegated || result.Output != "launched X" || result.Outputs["run_id"] != "X" {
		t.Fatalf("unexpected result: %+v", result)
	}
	last := result.Messages[len(result.Messages)-1]
	if last.Role != agent.RoleAssistant || last.Content != "launched X" {
		t.Fatalf("unexpected closing message: %+v", last)
	}
	if len(seen) != 2 || seen[0].CallID != "1" || seen[1].CallID != "2" {
		t.Fatalf("policy saw unexpected results: %+v", seen)
	}
	types := events.Types()
	if types[len(types)-1] != agent.EventTypeCompleted {
		t.Fatalf("expected trailing completed event: %v", types)
	}
}

func TestExecute_ToolFailuresStayInConversation(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32
	tools := executor{
		"flaky": func(context.Context, map[string]any) (string, error) {
			return "", errors.Join(agent.ErrPlatformUnavailable, errors.New("503"))
		},
		"ghost": func(context.Context, map[string]any) (string, error) {
			ran.Add(1)
			return "should not run", nil
		},
		"boom": func(context.Context, map[string]any) (string, error) {
			panic("kaboom")
		},
	}
	model := modeltest.NewScriptedModel(
		modeltest.Calls(call("1", "flaky", nil), call("2", "ghost", nil), call("3", "boom", nil)),
		modeltest.Text("the platform is down, try again"),
	)
	loop, _ := newLoop(t, model, tools, nil, false)

	result, err := loop.Execute(context.Background(), userState("go"), agent.EngineInput{Tools: definitions("flaky", "boom")})
	if err != nil {
		t.Fatalf("tool failures must not abort the loop: %v", err)
	}
	if ran.Load() != 0 {
		t.Fatalf("undefined tool must not execute")
	}
	toolMessages := result.Messages[3:6]
	wantPrefixes := []agent.ToolErrorKind{
		agent.ToolErrorKindPlatformUnavailable,
		agent.ToolErrorKindUnknownTool,
		agent.ToolErrorKindExecution,
	}
	for i, kind := range wantPrefixes {
		if !strings.HasPrefix(toolMessages[i].Content, string(kind)) {
			t.Fatalf("tool message[%d] = %q, want prefix %q", i, toolMessages[i].Content, kind)
		}
	}
	if !strings.Contains(toolMessages[0].Content, "retry later") {
		t.Fatalf("transient failure should carry a retry hint: %q", toolMessages[0].Content)
	}
	if result.Output != "the platform is down, try again" {
		t.Fatalf("unexpected output: %q", result.Output)
	}

	// The second model request saw all three error observations.
	requests := model.Requests()
	if len(requests) != 2 || len(requests[1].Messages) != 6 {
		t.Fatalf("unexpected model requests: %+v", requests)
	}
}

func TestExecute_ModelFailureIsLLMUnavailable(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("connection refused")
	model := modeltest.NewScriptedModel(modeltest.Fail(backendErr))
	loop, events := newLoop(t, model, executor{}, nil, false)

	result, err := loop.Execute(context.Background(), userState("hi"), agent.EngineInput{})
	if !errors.Is(err, agent.ErrLLMUnavailable) || !errors.Is(err, backendErr) {
		t.Fatalf("expected ErrLLMUnavailable wrapping backend error, got %v", err)
	}
	if result.Messages != nil {
		t.Fatalf("failed turn must not return messages: %+v", result.Messages)
	}
	if got := events.Types(); !reflect.DeepEqual(got, []agent.EventType{agent.EventTypeFailed}) {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestExecute_ModelTimeoutWithLiveContextIsLLMUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "canceled", err: context.Canceled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			model := modeltest.NewScriptedModel(modeltest.Fail(tc.err))
			loop, _ := newLoop(t, model, executor{}, nil, false)

			_, err := loop.Execute(context.Background(), userState("hi"), agent.EngineInput{})
			if !errors.Is(err, agent.ErrLLMUnavailable) {
				t.Fatalf("expected ErrLLMUnavailable, got %v", err)
			}
		})
	}
}

func TestExecute_EndpointClientTimeoutIsLLMUnavailable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	model, err := modelopenai.New(modelopenai.Config{
		Token:      "token",
		Model:      "endpoint",
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	loop, _ := newLoop(t, model, executor{}, nil, false)

	_, err = loop.Execute(context.Background(), userState("hi"), agent.EngineInput{})
	if !errors.Is(err, agent.ErrLLMUnavailable) {
		t.Fatalf("expected ErrLLMUnavailable for an endpoint timeout, got %v", err)
	}
}

func TestExecute_RejectsCallIDReusedAcrossSteps(t *testing.T) {
	t.Parallel()

	model := modeltest.NewScriptedModel(
		modeltest.Calls(call("c1", "lookup", nil)),
		modeltest.Calls(call("c1", "lookup", nil)),
		modeltest.Text("done"),
	)
	loop, _ := newLoop(t, model, executor{"lookup": echo("x")}, nil, false)

	_, err := loop.Execute(context.Background(), userState("go"), agent.EngineInput{})
	if !errors.Is(err, agentreact.ErrToolCallInvalid) {
		t.Fatalf("expected ErrToolCallInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "reused_id") {
		t.Fatalf("expected reused_id reason, got %v", err)
	}
	if model.Calls() != 2 {
		t.Fatalf("unexpected model calls: %d", model.Calls())
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop, _ := newLoop(t, modeltest.NewScriptedModel(modeltest.Text("x")), executor{}, nil, false)

	_, err := loop.Execute(ctx, userState("hi"), agent.EngineInput{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, agent.ErrLLMUnavailable) {
		t.Fatalf("cancellation must not be reported as LLM unavailable")
	}
}

func TestExecute_MaxStepsExceeded(t *testing.T) {
	t.Parallel()

	model := modeltest.NewScriptedModel(
		modeltest.Calls(call("1", "lookup", nil)),
		modeltest.Calls(call("2", "lookup", nil)),
	)
	loop, _ := newLoop(t, model, executor{"lookup": echo("more")}, nil, false)

	_, err := loop.Execute(context.Background(), userState("loop"), agent.EngineInput{MaxSteps: 2})
	if !errors.Is(err, agent.ErrMaxStepsExceeded) {
		t.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
	}
	if model.Calls() != 2 {
		t.Fatalf("unexpected model calls: %d", model.Calls())
	}
}

func TestExecute_RejectsInvalidToolCallShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		calls []agent.ToolCall
	}{
		{name: "empty id", calls: []agent.ToolCall{call("", "lookup", nil)}},
		{name: "empty name", calls: []agent.ToolCall{call("1", "", nil)}},
		{name: "duplicate id", calls: []agent.ToolCall{call("1", "lookup", nil), call("1", "lookup", nil)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			model := modeltest.NewScriptedModel(modeltest.Calls(tc.calls...))
			loop, _ := newLoop(t, model, executor{"lookup": echo("x")}, nil, false)
			_, err := loop.Execute(context.Background(), userState("go"), agent.EngineInput{})
			if !errors.Is(err, agentreact.ErrToolCallInvalid) {
				t.Fatalf("expected ErrToolCallInvalid, got %v", err)
			}
		})
	}
}

func TestExecute_DoesNotMutateInputState(t *testing.T) {
	t.Parallel()

	model := modeltest.NewScriptedModel(
		modeltest.Calls(call("1", "lookup", map[string]any{"q": "x"})),
		modeltest.Text("ok"),
	)
	loop, _ := newLoop(t, model, executor{"lookup": echo("facts")}, nil, false)
	state := userState("go")
	before := agent.CloneConversationState(state)

	if _, err := loop.Execute(context.Background(), state, agent.EngineInput{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !reflect.DeepEqual(state, before) {
		t.Fatalf("input state mutated: got=%+v want=%+v", state, before)
	}
}
