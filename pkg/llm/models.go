package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelManager holds the process-wide active model. It is set once at
// startup from config and mutated only by the operator's model-switch
// meta-command; every capability call reads it. No other writer is
// permitted.
type ModelManager struct {
	mu       sync.RWMutex
	active   string
	aliases  map[string]string
	fallback []string
}

// SwitchResult reports the outcome of a model switch attempt.
type SwitchResult struct {
	Success bool
	Model   string
	Message string
}

// NewModelManager creates a manager with the given default model,
// short-name aliases, and ordered fallback chain.
func NewModelManager(defaultModel string, aliases map[string]string, fallback []string) *ModelManager {
	copied := make(map[string]string, len(aliases))
	for name, id := range aliases {
		copied[strings.ToLower(name)] = id
	}
	return &ModelManager{
		active:   defaultModel,
		aliases:  copied,
		fallback: append([]string(nil), fallback...),
	}
}

// Active returns the current active model id.
func (m *ModelManager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// ActiveName returns the short alias for the active model when one
// exists, otherwise the full id.
func (m *ModelManager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, id := range m.aliases {
		if id == m.active {
			return name
		}
	}
	return m.active
}

// Switch resolves nameOrID against the alias table first, then against
// full model ids, and activates the match. Unknown names leave the
// active model unchanged.
func (m *ModelManager) Switch(nameOrID string) SwitchResult {
	lower := strings.ToLower(strings.TrimSpace(nameOrID))

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.aliases[lower]; ok {
		m.active = id
		return SwitchResult{
			Success: true,
			Model:   id,
			Message: fmt.Sprintf("Switched to *%s* (`%s`)", lower, id),
		}
	}

	for name, id := range m.aliases {
		if id == lower {
			m.active = id
			return SwitchResult{
				Success: true,
				Model:   id,
				Message: fmt.Sprintf("Switched to *%s* (`%s`)", name, id),
			}
		}
	}

	return SwitchResult{
		Success: false,
		Model:   m.active,
		Message: fmt.Sprintf("Unknown model %q. Available: %s", nameOrID, strings.Join(m.availableLocked(), ", ")),
	}
}

// Available returns the sorted short names of all known models.
func (m *ModelManager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.availableLocked()
}

func (m *ModelManager) availableLocked() []string {
	names := make([]string, 0, len(m.aliases))
	for name := range m.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns a copy of the alias table.
func (m *ModelManager) Aliases() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied := make(map[string]string, len(m.aliases))
	for name, id := range m.aliases {
		copied[name] = id
	}
	return copied
}

// FallbacksFor returns the fallback chain excluding the model that
// just failed.
func (m *ModelManager) FallbacksFor(failedModel string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.fallback))
	for _, id := range m.fallback {
		if id != failedModel {
			out = append(out, id)
		}
	}
	return out
}
