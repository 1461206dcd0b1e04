package engineer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinker/internal/mocks"
	"tinker/pkg/agent/llm"
	"tinker/pkg/config"
	"tinker/pkg/configdoc"
	"tinker/pkg/knowledge"
	"tinker/pkg/logx"
	"tinker/pkg/plan"
	"tinker/pkg/tools"
)

func newRegistry(t *testing.T, initial string, history *plan.History) *tools.Registry {
	t.Helper()
	project := t.TempDir()
	path := filepath.Join(project, "config.yaml")
	if initial != "" {
		require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))
	}
	doc, err := configdoc.Load(path)
	require.NoError(t, err)
	doc.Snapshot()
	return tools.NewRegistry(doc, history, tools.Options{ProjectPath: project})
}

func newEngineer(client llm.LLMClient, maxOptions int) *Engineer {
	return New(client, config.Engineer{MaxRetries: 2, MaxOptions: maxOptions}, knowledge.Default(), logx.Nop())
}

// respondByObjective answers each resolver request with the reply keyed by
// the option description.
func respondByObjective(mock *mocks.MockLLMClient, replies map[string]string) {
	mock.OnComplete(func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		user := req.Messages[len(req.Messages)-1].Content
		for objective, reply := range replies {
			if strings.HasPrefix(user, "Objective: "+objective+"\n") {
				return llm.CompletionResponse{Content: reply}, nil
			}
		}
		return llm.CompletionResponse{}, errors.New("unexpected objective")
	})
}

func option(id, description string, priority plan.Priority) plan.Option {
	return plan.Option{
		OptionID:    id,
		Description: description,
		Problem:     "p",
		Solution:    plan.TextSolution("s"),
		Priority:    priority,
	}
}

func TestOrderIsStableByPriority(t *testing.T) {
	opts := []plan.Option{
		option("a", "a", plan.PriorityLow),
		option("b", "b", plan.PriorityCritical),
		option("c", "c", plan.PriorityMedium),
		option("d", "d", plan.PriorityHigh),
		option("e", "e", plan.PriorityCritical),
	}
	ids := func(opts []plan.Option) string {
		var s []string
		for _, o := range opts {
			s = append(s, o.OptionID)
		}
		return strings.Join(s, "")
	}
	assert.Equal(t, "bedca", ids(Order(opts, 0)))
	assert.Equal(t, "bed", ids(Order(opts, 3)))
	assert.Equal(t, "abcde", ids(opts), "input is not reordered")
}

func TestExecuteOrdersOptionsByPriority(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith(`{"action": "skip", "skip_reason": "not needed"}`)

	p := plan.Plan{ID: "p1", Options: []plan.Option{
		option("1", "low one", plan.PriorityLow),
		option("2", "critical one", plan.PriorityCritical),
		option("3", "medium one", plan.PriorityMedium),
		option("4", "high one", plan.PriorityHigh),
	}}
	res := newEngineer(mock, 0).Execute(context.Background(), newRegistry(t, "", nil), p, Run{Round: 1})

	require.Len(t, res.Records, 4)
	var order []string
	for _, r := range res.Records {
		order = append(order, r.OptionID)
	}
	assert.Equal(t, []string{"2", "4", "3", "1"}, order)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, "Skipped: not needed", res.Records[0].Summary)
	assert.Empty(t, res.ConfigDiff)
}

func TestExecuteCapsOptions(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith(`{"action": "skip", "skip_reason": "no"}`)

	var opts []plan.Option
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		opts = append(opts, option(id, "o"+id, plan.PriorityMedium))
	}
	res := newEngineer(mock, 3).Execute(context.Background(), newRegistry(t, "", nil), plan.Plan{Options: opts}, Run{})
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, "3", res.Records[2].OptionID)
}

func TestExecuteDeviceModelScenario(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith(`{"reasoning": "model the flash", "action": "execute", "tool_calls": [
		{"tool": "add_device_model", "params": {"filepath": "/dev/mtd0", "name": "bootloader", "reason": "open failed"}}]}`)

	reg := newRegistry(t, "", nil)
	history := &plan.History{}
	p := plan.Plan{ID: "p1", Options: []plan.Option{option("1", "Model mtd0", plan.PriorityHigh)}}
	res := newEngineer(mock, 3).Execute(context.Background(), reg, p, Run{Round: 2, History: history})

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, plan.StatusSuccess, rec.Status)
	assert.Equal(t, "All 1 tool calls executed successfully", rec.Summary)
	assert.Equal(t, tools.ToolAddDeviceModel, rec.Tool)
	assert.Equal(t, "/dev/mtd0", rec.Input["filepath"])
	assert.Equal(t, 2, rec.Round)
	assert.Equal(t, reg.Document().Path(), rec.OutputURI)
	assert.Equal(t, 1, history.Len())

	entry, ok := reg.Document().GetAt("pseudofiles", "/dev/mtd0")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "bootloader"}, entry)
	assert.Contains(t, res.ConfigDiff, "/dev/mtd0")

	// The same call a second time fails and leaves the document alone.
	before, err := reg.Document().Bytes()
	require.NoError(t, err)
	res = newEngineer(mock, 3).Execute(context.Background(), reg, p, Run{Round: 3})
	require.Len(t, res.Records, 1)
	assert.Equal(t, plan.StatusFailed, res.Records[0].Status)
	assert.Contains(t, res.Records[0].Calls[0].Message, "already exists")
	after, err := reg.Document().Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSinglePlaceholderPerRound(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	placeholder := func(name string) string {
		return `{"action": "execute", "tool_calls": [{"tool": "add_placeholder_variable", "params": {"name": "` + name + `", "reason": "unknown"}}]}`
	}
	respondByObjective(mock, map[string]string{
		"Discover sxid":    placeholder("sxid"),
		"Discover lan_ip":  placeholder("lan_ip"),
		"Discover country": placeholder("country"),
	})

	p := plan.Plan{Options: []plan.Option{
		option("1", "Discover sxid", plan.PriorityHigh),
		option("2", "Discover lan_ip", plan.PriorityHigh),
		option("3", "Discover country", plan.PriorityHigh),
	}}
	history := &plan.History{}
	reg := newRegistry(t, "", history)
	res := newEngineer(mock, 0).Execute(context.Background(), reg, p, Run{Round: 1, History: history})

	require.Len(t, res.Records, 3)
	assert.Equal(t, plan.StatusSuccess, res.Records[0].Status)
	for _, rec := range res.Records[1:] {
		assert.Equal(t, plan.StatusFailed, rec.Status)
		assert.Equal(t, BlockedPreviousOption, rec.Calls[0].Message)
	}
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 2, res.Failed)

	_, hasLan := reg.Document().GetAt("env", "lan_ip")
	assert.False(t, hasLan)
	name, ok := plan.SuccessfulPlaceholder(history.Records())
	require.True(t, ok)
	assert.Equal(t, "sxid", name)
}

func TestPlaceholderBlockedByEarlierRound(t *testing.T) {
	history := &plan.History{}
	history.Append(plan.ActionRecord{
		Tool:   plan.PlaceholderTool,
		Status: plan.StatusSuccess,
		Calls:  []plan.CallOutcome{{Tool: plan.PlaceholderTool, Params: map[string]any{"name": "sxid"}, Success: true}},
	})

	mock := mocks.NewMockLLMClient()
	mock.RespondWith(`{"action": "execute", "tool_calls": [{"tool": "add_placeholder_variable", "params": {"name": "other", "reason": "r"}}]}`)
	p := plan.Plan{Options: []plan.Option{option("1", "Discover other", plan.PriorityHigh)}}

	res := newEngineer(mock, 0).Execute(context.Background(), newRegistry(t, "", history), p, Run{Round: 3})
	assert.Equal(t, plan.StatusFailed, res.Records[0].Status)

	// Resolving the discovery reopens the slot.
	history.MarkDiscoveryResolved()
	res = newEngineer(mock, 0).Execute(context.Background(), newRegistry(t, "", history), p, Run{Round: 4})
	assert.Equal(t, plan.StatusSuccess, res.Records[0].Status)
}

func TestBlockedCallDoesNotAbortSiblings(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith(`{"action": "execute", "tool_calls": [
		{"tool": "add_placeholder_variable", "params": {"name": "a", "reason": "r"}},
		{"tool": "add_placeholder_variable", "params": {"name": "b", "reason": "r"}},
		{"tool": "add_device_model", "params": {"filepath": "/dev/gpio", "reason": "r"}}]}`)

	p := plan.Plan{Options: []plan.Option{option("1", "mixed", plan.PriorityHigh)}}
	res := newEngineer(mock, 0).Execute(context.Background(), newRegistry(t, "", nil), p, Run{})

	rec := res.Records[0]
	assert.Equal(t, plan.StatusPartial, rec.Status)
	assert.Equal(t, "2/3 tool calls succeeded", rec.Summary)
	require.Len(t, rec.Calls, 3)
	assert.Equal(t, BlockedSameOption, rec.Calls[1].Message)
	assert.True(t, rec.Calls[2].Success)
	assert.Equal(t, tools.ToolAddPlaceholder, rec.Tool)
	assert.Equal(t, 1, res.Partial)
}

func TestResolverRetriesThenFails(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWithContents(`{"action": "execute", "tool_calls": []}`, `{"action": "maybe"}`)

	p := plan.Plan{Options: []plan.Option{option("1", "o", plan.PriorityHigh)}}
	res := newEngineer(mock, 0).Execute(context.Background(), newRegistry(t, "", nil), p, Run{})

	rec := res.Records[0]
	assert.Equal(t, plan.StatusFailed, rec.Status)
	assert.Equal(t, "LLM failed to generate valid tool calls after retries", rec.Summary)
	assert.Equal(t, "unknown", rec.Tool)
	assert.Empty(t, rec.OutputURI)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.InDelta(t, 0.3, calls[0].Temperature, 0.0001)
	assert.InDelta(t, 0.2, calls[1].Temperature, 0.0001)
	assert.Equal(t, 1024, calls[1].MaxTokens)
	assert.Contains(t, calls[1].Messages[1].Content,
		"PREVIOUS ATTEMPT FAILED: Action is 'execute' but no tool_calls provided\nPlease output VALID JSON matching the schema exactly.")
}

func TestResolverRecoversOnRetry(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWithSequence(
		mocks.Reply{Err: errors.New("connection reset")},
		mocks.Reply{Content: `{"action": "execute", "tool_calls": [{"tool": "add_device_model", "params": {"filepath": "/dev/a", "reason": "r"}}]}`},
	)
	p := plan.Plan{Options: []plan.Option{option("1", "o", plan.PriorityHigh)}}
	res := newEngineer(mock, 0).Execute(context.Background(), newRegistry(t, "", nil), p, Run{})
	assert.Equal(t, plan.StatusSuccess, res.Records[0].Status)
	assert.Contains(t, mock.Calls()[1].Messages[1].Content, "PREVIOUS ATTEMPT FAILED: connection reset")
}

func TestDiscoveryPromptAndGuidance(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith(`{"action": "execute", "tool_calls": [{"tool": "set_discovered_value", "params": {"name": "sxid", "value": "abc", "reason": "found"}}]}`)

	value := "abc"
	opt := option("1", "Apply sxid", plan.PriorityCritical)
	opt.Solution = plan.Solution{Action: plan.ActionSetValue, Path: "env.sxid", Value: &value}
	opt.Metadata = &plan.Metadata{VariableName: "sxid"}

	reg := newRegistry(t, "env:\n  sxid: DYNVALDYNVALDYNVAL\n", nil)
	res := newEngineer(mock, 3).Execute(context.Background(), reg, plan.Plan{Options: []plan.Option{opt}}, Run{DiscoveryVariable: "sxid"})
	assert.Equal(t, plan.StatusSuccess, res.Records[0].Status)

	got, ok := reg.Document().GetAt("env", "sxid")
	require.True(t, ok)
	assert.Equal(t, "abc", got)

	req := mock.Calls()[0]
	assert.True(t, req.JSONOutput)
	assert.Contains(t, req.Messages[0].Content, "🔍 DISCOVERY MODE")
	assert.Contains(t, req.Messages[0].Content, `variable_name: "sxid"`)
	assert.Contains(t, req.Messages[0].Content, `config_path: "env.sxid"`)
	assert.Contains(t, req.Messages[0].Content, "**set_discovered_value**")
	assert.Contains(t, req.Messages[1].Content, "Knowledge Base Guidance:")
	assert.Contains(t, req.Messages[1].Content, "Tool: set_discovered_value")
}
