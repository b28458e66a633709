// ABOUTME: Thread-safe registry of tools keyed by name.
// ABOUTME: Last registration wins; Execute turns lookup misses, errors and panics into outcomes.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrToolNotFound indicates no tool is registered under the requested name.
	ErrToolNotFound = errors.New("Tool not found")

	// ErrEmptyName indicates a tool was registered without a name.
	ErrEmptyName = errors.New("tool name is required")

	// ErrNilHandler indicates a tool was registered without a handler.
	ErrNilHandler = errors.New("tool handler is required")
)

// Info is the public description of a registered tool, as announced to
// subscribers.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Registry maps tool names to tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register stores tool under tool.Name. A tool already registered under the
// same name is replaced.
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return ErrEmptyName
	}
	if tool.Handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		r.logger.Warn("tool re-registered, previous definition replaced", "tool", tool.Name)
	}
	r.tools[tool.Name] = tool

	r.logger.Debug("tool registered", "tool", tool.Name, "total_tools", len(r.tools))
	return nil
}

// RegisterAll registers each tool in order, stopping at the first error.
func (r *Registry) RegisterAll(tools ...*Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a tool. Returns false if it was not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	return true
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// List returns a snapshot of all registered tools sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, Info{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute resolves name and runs its handler. It never returns an error:
// unknown tools, handler errors and handler panics all become error outcomes.
func (r *Registry) Execute(ctx context.Context, name string, params Params) Outcome {
	tool, ok := r.Lookup(name)
	if !ok {
		return Failure(fmt.Errorf("%w: %s", ErrToolNotFound, name))
	}
	if params == nil {
		params = Params{}
	}

	result, err := r.run(ctx, tool, params)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return Failure(err)
	}
	return Success(result)
}

func (r *Registry) run(ctx context.Context, tool *Tool, params Params) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", tool.Name, "panic", rec)
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, rec)
		}
	}()
	return tool.Handler(ctx, params)
}
