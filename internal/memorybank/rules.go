// ABOUTME: Global editor rules stored at <workspace>/.cursor/rules/memory-bank.mdc
// ABOUTME: and the workspace-level .cursorrules bootstrap file.

package memorybank

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReadGlobalRules returns the rules document, or ErrRulesNotFound.
func (m *Manager) ReadGlobalRules(ctx context.Context) (GlobalRules, error) {
	if err := ctx.Err(); err != nil {
		return GlobalRules{}, err
	}

	data, err := os.ReadFile(m.rulesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return GlobalRules{Path: m.rulesPath}, ErrRulesNotFound
	}
	if err != nil {
		return GlobalRules{}, fmt.Errorf("reading global rules: %w", err)
	}
	return GlobalRules{Path: m.rulesPath, Content: string(data)}, nil
}

// UpdateGlobalRules overwrites the rules document, creating it if needed.
func (m *Manager) UpdateGlobalRules(ctx context.Context, content string) (GlobalRules, error) {
	if err := ctx.Err(); err != nil {
		return GlobalRules{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := writeWithParents(m.rulesPath, content); err != nil {
		return GlobalRules{}, fmt.Errorf("writing global rules: %w", err)
	}
	m.logger.Info("global rules updated", "path", m.rulesPath)
	return GlobalRules{Path: m.rulesPath, Content: content}, nil
}

// InitializeGlobalRules writes the default rules when none exist. Existing
// rules are returned untouched.
func (m *Manager) InitializeGlobalRules(ctx context.Context) (GlobalRules, error) {
	rules, err := m.ReadGlobalRules(ctx)
	if err == nil {
		return rules, nil
	}
	if !errors.Is(err, ErrRulesNotFound) {
		return GlobalRules{}, err
	}
	return m.UpdateGlobalRules(ctx, defaultGlobalRules())
}

// EnsureCursorRules writes <workspace>/.cursorrules when missing. Reports
// whether the file was created.
func (m *Manager) EnsureCursorRules(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path := filepath.Join(m.workspace, ".cursorrules")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking .cursorrules: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := writeWithParents(path, defaultCursorRules()); err != nil {
		return false, fmt.Errorf("writing .cursorrules: %w", err)
	}
	m.logger.Info("created .cursorrules", "path", path)
	return true, nil
}

func writeWithParents(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), filePerm)
}
