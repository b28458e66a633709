// ABOUTME: Memory bank persistence: generates, reads and updates the markdown files
// ABOUTME: that hold long-lived project context under <workspace>/memory-bank.

package memorybank

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned when the memory bank directory is missing or holds no known files.
	ErrNotFound = errors.New("Memory Bank not found or empty")

	// ErrUnknownFile is returned when a file key is not part of the bank structure.
	ErrUnknownFile = errors.New("not found in memory bank")

	// ErrRulesNotFound is returned when the global rules file does not exist.
	ErrRulesNotFound = errors.New("Global rules not found")
)

// DefaultDirName is the directory created inside the workspace.
const DefaultDirName = "memory-bank"

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// fileSpec describes one file of the bank.
type fileSpec struct {
	Key         string
	FileName    string
	Title       string
	Description string
	template    string
}

// bankFiles is the canonical file order. Reads and listings follow it.
var bankFiles = []fileSpec{
	{"projectbrief", "projectbrief.md", "Project Brief", "Foundation document that shapes all other files", "projectbrief.md.tmpl"},
	{"productContext", "productContext.md", "Product Context", "Why this project exists, problems it solves, and user experience goals", "productContext.md.tmpl"},
	{"systemPatterns", "systemPatterns.md", "System Patterns", "System architecture, key technical decisions, and design patterns", "systemPatterns.md.tmpl"},
	{"techContext", "techContext.md", "Tech Context", "Technologies used, development setup, and dependencies", "techContext.md.tmpl"},
	{"activeContext", "activeContext.md", "Active Context", "Current work focus, recent changes, and next steps", "activeContext.md.tmpl"},
	{"progress", "progress.md", "Progress", "What works, what's left to build, and current status", "progress.md.tmpl"},
	{"clinerules", ".clinerules", "Clinerules", "Project-specific patterns and preferences", "clinerules.tmpl"},
}

// Keys returns the file keys in canonical order.
func Keys() []string {
	keys := make([]string, len(bankFiles))
	for i, f := range bankFiles {
		keys[i] = f.Key
	}
	return keys
}

// lookupSpec resolves a key. The on-disk file name is accepted as an alias.
func lookupSpec(name string) (fileSpec, bool) {
	for _, f := range bankFiles {
		if f.Key == name || f.FileName == name {
			return f, true
		}
	}
	return fileSpec{}, false
}

// ProjectInfo seeds a new bank.
type ProjectInfo struct {
	Name         string
	Description  string
	Technologies []string
}

// File is one memory bank document.
type File struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	Sections    []Section `json:"sections,omitempty"`
}

// GlobalRules is the editor rules document shared by every bank user.
type GlobalRules struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Options configures a Manager.
type Options struct {
	// Workspace is the project root. Default: current directory.
	Workspace string

	// BankDir overrides <Workspace>/memory-bank.
	BankDir string

	Logger *slog.Logger
}

// Manager reads and writes the bank. Filesystem mutations are serialized.
type Manager struct {
	workspace string
	bankDir   string
	rulesPath string
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]File
}

// NewManager creates a manager rooted at opts.Workspace.
func NewManager(opts Options) (*Manager, error) {
	ws := opts.Workspace
	if ws == "" {
		ws = "."
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	bankDir := opts.BankDir
	if bankDir == "" {
		bankDir = filepath.Join(ws, DefaultDirName)
	} else if !filepath.IsAbs(bankDir) {
		bankDir = filepath.Join(ws, bankDir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		workspace: ws,
		bankDir:   bankDir,
		rulesPath: filepath.Join(ws, ".cursor", "rules", "memory-bank.mdc"),
		logger:    logger.With("component", "memorybank"),
		cache:     make(map[string]File),
	}, nil
}

// Workspace returns the absolute workspace root.
func (m *Manager) Workspace() string { return m.workspace }

// Dir returns the absolute bank directory.
func (m *Manager) Dir() string { return m.bankDir }

// RulesPath returns the absolute path of the global rules file.
func (m *Manager) RulesPath() string { return m.rulesPath }

// DetectCline reports whether a bank already exists, for example one created
// by Cline. Either .clinerules or any core markdown file counts.
func (m *Manager) DetectCline(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	for _, f := range bankFiles {
		info, err := os.Stat(filepath.Join(m.bankDir, f.FileName))
		if err == nil && info.Mode().IsRegular() {
			return true
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("checking for existing memory bank", "file", f.FileName, "error", err)
		}
	}
	return false
}

// Initialize creates the bank from templates. An existing bank is reused as is.
func (m *Manager) Initialize(ctx context.Context, info ProjectInfo) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.DetectCline(ctx) {
		files, err := m.ReadAll(ctx)
		if err == nil {
			m.logger.Info("reusing existing memory bank", "dir", m.bankDir, "files", len(files))
			return files, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.bankDir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating memory bank directory: %w", err)
	}

	files := make([]File, 0, len(bankFiles))
	for _, spec := range bankFiles {
		content, err := render(spec.template, info)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(m.bankDir, spec.FileName)
		if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
			return nil, fmt.Errorf("writing %s: %w", spec.FileName, err)
		}
		f := newFile(spec, path, content)
		m.cache[spec.Key] = f
		files = append(files, f)
	}

	m.logger.Info("memory bank initialized", "dir", m.bankDir, "project", info.Name)
	return files, nil
}

// ReadAll loads every known file present on disk, in canonical order.
func (m *Manager) ReadAll(ctx context.Context) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readAllLocked()
}

func (m *Manager) readAllLocked() ([]File, error) {
	info, err := os.Stat(m.bankDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading memory bank directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", m.bankDir)
	}

	var files []File
	for _, spec := range bankFiles {
		path := filepath.Join(m.bankDir, spec.FileName)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", spec.FileName, err)
		}
		f := newFile(spec, path, string(data))
		m.cache[spec.Key] = f
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, ErrNotFound
	}
	return files, nil
}

// UpdateFile replaces the content of one existing bank file. key is a file
// key such as "activeContext"; the file name "activeContext.md" also works.
func (m *Manager) UpdateFile(ctx context.Context, key, content string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}

	spec, ok := lookupSpec(strings.TrimSpace(key))
	if !ok {
		return File{}, fmt.Errorf("File %s %w", key, ErrUnknownFile)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, cached := m.cache[spec.Key]; !cached {
		if _, err := m.readAllLocked(); err != nil && !errors.Is(err, ErrNotFound) {
			return File{}, err
		}
	}
	if _, cached := m.cache[spec.Key]; !cached {
		return File{}, fmt.Errorf("File %s %w", key, ErrUnknownFile)
	}

	path := filepath.Join(m.bankDir, spec.FileName)
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return File{}, fmt.Errorf("writing %s: %w", spec.FileName, err)
	}

	f := newFile(spec, path, content)
	m.cache[spec.Key] = f
	m.logger.Info("memory bank file updated", "file", spec.FileName, "bytes", len(content))
	return f, nil
}

func newFile(spec fileSpec, path, content string) File {
	return File{
		Key:         spec.Key,
		Name:        spec.Title,
		Path:        path,
		Content:     content,
		Description: spec.Description,
		Sections:    Outline([]byte(content)),
	}
}
