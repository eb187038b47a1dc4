package registry

import (
	"sort"
	"strings"

	"github.com/last-minute-learner/reviewer-api/internal/tools"
	"github.com/sirupsen/logrus"
)

// EnvDisabledTools lists tool names to leave unregistered, comma separated
const EnvDisabledTools = "DISABLED_TOOLS"

// Registry holds the tools exposed over MCP
type Registry struct {
	// toolRegistry is a map of tool names to tool implementations
	toolRegistry map[string]tools.Tool

	// disabledTools is a set of tool names to disable
	disabledTools map[string]bool

	logger *logrus.Logger
}

// New creates an empty registry. disabled is the raw DISABLED_TOOLS value.
func New(logger *logrus.Logger, disabled string) *Registry {
	r := &Registry{
		toolRegistry:  make(map[string]tools.Tool),
		disabledTools: make(map[string]bool),
		logger:        logger,
	}
	r.parseDisabledTools(disabled)
	return r
}

func (r *Registry) parseDisabledTools(envValue string) {
	for tool := range strings.SplitSeq(envValue, ",") {
		tool = strings.TrimSpace(tool)
		if tool != "" {
			r.disabledTools[tool] = true
			r.logger.WithField("tool", tool).Debug("Tool disabled")
		}
	}
}

// Register adds a tool implementation unless it has been disabled
func (r *Registry) Register(tool tools.Tool) {
	toolName := tool.Definition().Name

	if r.disabledTools[toolName] {
		r.logger.WithField("tool", toolName).Debug("Tool not registered (disabled)")
		return
	}

	r.toolRegistry[toolName] = tool
	r.logger.WithField("tool", toolName).Debug("Tool successfully registered")
}

// GetTool retrieves a tool by name
func (r *Registry) GetTool(name string) (tools.Tool, bool) {
	tool, ok := r.toolRegistry[name]
	return tool, ok
}

// GetTools returns all registered tools
func (r *Registry) GetTools() map[string]tools.Tool {
	out := make(map[string]tools.Tool, len(r.toolRegistry))
	for name, tool := range r.toolRegistry {
		out[name] = tool
	}
	return out
}

// GetToolNames returns a sorted list of registered tool names
func (r *Registry) GetToolNames() []string {
	names := make([]string, 0, len(r.toolRegistry))
	for name := range r.toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
