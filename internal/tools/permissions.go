package tools

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// ShellPermissions gates shell commands on configured glob patterns.
// An empty pattern set allows everything; once patterns exist, a
// command must match one of them.
type ShellPermissions struct {
	mu       sync.RWMutex
	patterns []compiledPattern
}

type compiledPattern struct {
	raw      string
	compiled glob.Glob
}

func NewShellPermissions(patterns []string) (*ShellPermissions, error) {
	p := &ShellPermissions{}
	for _, raw := range patterns {
		if err := p.AddPattern(raw); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddPattern compiles and installs one allowlist pattern, e.g. "git *".
func (p *ShellPermissions) AddPattern(raw string) error {
	compiled, err := glob.Compile(raw)
	if err != nil {
		return NewToolErrorf(ErrInvalidParams, "invalid shell pattern %q: %v", raw, err)
	}
	p.mu.Lock()
	p.patterns = append(p.patterns, compiledPattern{raw: raw, compiled: compiled})
	p.mu.Unlock()
	return nil
}

// Allowed reports whether the command may run.
func (p *ShellPermissions) Allowed(command string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.patterns) == 0 {
		return true
	}
	command = strings.TrimSpace(command)
	for _, pat := range p.patterns {
		if pat.compiled.Match(command) {
			return true
		}
	}
	return false
}
