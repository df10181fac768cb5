// Package tools defines the uniform tool surface the plan executor drives:
// a registry of named tools, a context bundle injected per call, and the
// built-in world tools (speech, movement-adjacent helpers, documents, human
// handoff).
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"smalltown/internal/chat"
	"smalltown/internal/embedding"
	"smalltown/internal/logging"
	"smalltown/internal/store"
	"smalltown/internal/types"
)

// Sentinel errors.
var (
	// ErrToolNotFound is returned by Get for unknown names.
	ErrToolNotFound = errors.New("tools: tool not found")

	// ErrToolAlreadyRegistered is returned when a name is registered twice.
	ErrToolAlreadyRegistered = errors.New("tools: tool already registered")

	// ErrAwaitingHuman is returned by the human tool after surfacing its
	// question. The executor parks the plan until a reply event with
	// matching correlation metadata arrives.
	ErrAwaitingHuman = errors.New("tools: awaiting human reply")

	// ErrBadInput is returned when tool input fails its grammar.
	ErrBadInput = errors.New("tools: bad input")
)

// EventSink is where tools publish their side effects. bus.Bus satisfies it.
type EventSink interface {
	Add(ctx context.Context, e *types.Event) error
}

// ToolContext is the per-call bundle handed to tools that act on the world.
type ToolContext struct {
	AgentID string
	World   *types.WorldContext
	Store   store.Store
	Events  EventSink
	Chat    chat.Gateway
	Embed   embedding.Engine

	// DocumentSearchK and DocumentSearchThreshold tune search_documents.
	DocumentSearchK         int
	DocumentSearchThreshold float64
}

// Tool is one executor-callable capability. Description appears verbatim in
// the executor prompt, so it doubles as the input-format documentation.
type Tool struct {
	Name        string
	Description string

	// Worldwide tools are available at every location.
	Worldwide bool

	// RequiresContext marks tools that act on the world and need the full
	// ToolContext populated.
	RequiresContext bool

	Execute func(ctx context.Context, input string, tc ToolContext) (string, error)
}

// Validate checks the tool is completely specified.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if t.Description == "" {
		return fmt.Errorf("tool %s has no description", t.Name)
	}
	if t.Execute == nil {
		return fmt.Errorf("tool %s has no execute function", t.Name)
	}
	return nil
}

// Registry holds all known tools. Lookup is case-insensitive. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Names are unique case-insensitively.
func (r *Registry) Register(t *Tool) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(t.Name)
	if _, exists := r.tools[key]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, t.Name)
	}
	r.tools[key] = t
	logging.ToolsDebug("Registered tool: %s (worldwide=%v)", t.Name, t.Worldwide)
	return nil
}

// MustRegister registers a tool and panics on error. For static registration
// at startup.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", t.Name, err))
	}
}

// Get returns the named tool, case-insensitively.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// ForLocation returns the tools usable at the location: its available_tools
// plus every worldwide tool, sorted by name.
func (r *Registry) ForLocation(loc *types.Location) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*Tool
	for _, t := range r.tools {
		if t.Worldwide {
			out = append(out, t)
			seen[strings.ToLower(t.Name)] = true
		}
	}
	if loc != nil {
		for _, name := range loc.AvailableTools {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			if t, ok := r.tools[key]; ok {
				out = append(out, t)
				seen[key] = true
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewDefaultRegistry returns a registry loaded with every built-in tool.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(SearchTool())
	r.MustRegister(SpeakTool())
	r.MustRegister(WaitTool())
	r.MustRegister(HumanTool())
	r.MustRegister(DirectoryTool())
	r.MustRegister(SaveDocumentTool())
	r.MustRegister(ReadDocumentTool())
	r.MustRegister(SearchDocumentsTool())
	return r
}
