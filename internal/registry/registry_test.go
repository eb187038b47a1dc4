package registry

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/last-minute-learner/reviewer-api/internal/errorlog"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/last-minute-learner/reviewer-api/internal/testutils"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name string
	err  error
	args map[string]any
}

func (f *fakeTool) Definition() mcp.Tool {
	return mcp.NewTool(f.name, mcp.WithDescription("fake"))
}

func (f *fakeTool) Execute(_ context.Context, _ *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return mcp.NewToolResultText("ok"), nil
}

func TestRegistry_RegisterAndDisable(t *testing.T) {
	r := New(testutils.CreateTestLogger(), " beta , ,")

	r.Register(&fakeTool{name: "gamma"})
	r.Register(&fakeTool{name: "alpha"})
	r.Register(&fakeTool{name: "beta"})

	assert.Equal(t, []string{"alpha", "gamma"}, r.GetToolNames())
	assert.Len(t, r.GetTools(), 2)

	_, ok := r.GetTool("beta")
	assert.False(t, ok)

	tool, ok := r.GetTool("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", tool.Definition().Name)
}

func TestToolHandler(t *testing.T) {
	r := New(testutils.CreateTestLogger(), "")
	tool := &fakeTool{name: "generate_reviewer"}
	r.Register(tool)

	handler := r.toolHandler("generate_reviewer", nil)

	request := mcp.CallToolRequest{}
	request.Params.Name = "generate_reviewer"
	request.Params.Arguments = map[string]any{"prompt": "Topic"}

	result, err := handler(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Topic", tool.args["prompt"])

	request.Params.Arguments = nil
	_, err = handler(context.Background(), request)
	require.NoError(t, err)
	assert.Empty(t, tool.args)

	request.Params.Arguments = "not a map"
	_, err = handler(context.Background(), request)
	assert.ErrorContains(t, err, "invalid arguments type")

	_, err = r.toolHandler("missing", nil)(context.Background(), request)
	assert.ErrorContains(t, err, "tool not found")
}

func TestToolHandler_RecordsFailures(t *testing.T) {
	logger := testutils.CreateTestLogger()
	errLog, err := errorlog.New(logger, true, t.TempDir())
	require.NoError(t, err)
	defer func() { _ = errLog.Close() }()

	r := New(logger, "")
	r.Register(&fakeTool{
		name: "generate_reviewer",
		err:  &reviewer.GenerationError{Provider: "openai", Err: errors.New("rate limited")},
	})

	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]any{"prompt": "Topic", "file_path": "/tmp/notes.pdf"}

	_, err = r.toolHandler("generate_reviewer", errLog)(context.Background(), request)
	require.Error(t, err)

	data, err := os.ReadFile(errLog.FilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"generation"`)
	assert.Contains(t, string(data), `"transport":"mcp"`)
	assert.Contains(t, string(data), `"filename":"notes.pdf"`)
}

func TestNewMCPServer(t *testing.T) {
	r := New(testutils.CreateTestLogger(), "")
	r.Register(&fakeTool{name: "generate_reviewer"})

	assert.NotNil(t, r.NewMCPServer("reviewer-api", "dev", nil))
}
