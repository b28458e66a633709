// ABOUTME: Memory bank tool pack: six tools that read and write the bank and rules.
// ABOUTME: Failures are wrapped as "Failed to <verb> ...: <cause>".

package builtins

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/membank/internal/commands"
	"github.com/2389/membank/internal/memorybank"
	"github.com/2389/membank/internal/tools"
)

// Bank is the memory bank surface the tools need.
type Bank interface {
	commands.Bank
	UpdateFile(ctx context.Context, key, content string) (memorybank.File, error)
	ReadGlobalRules(ctx context.Context) (memorybank.GlobalRules, error)
	UpdateGlobalRules(ctx context.Context, content string) (memorybank.GlobalRules, error)
}

// MemoryBankPack returns the memory bank tools bound to bank and proc.
func MemoryBankPack(bank Bank, proc *commands.Processor) []*tools.Tool {
	h := &bankHandlers{bank: bank, proc: proc}
	return []*tools.Tool{
		{
			Name:        "initialize_memory_bank",
			Description: "Initialize the Memory Bank structure for a project",
			Parameters: tools.ObjectSchema(map[string]tools.Property{
				"project_name":        {Type: "string", Description: "Name of the project"},
				"project_description": {Type: "string", Description: "Description of the project"},
				"technologies":        tools.StringArray("List of technologies used in the project"),
			}, "project_name", "project_description"),
			Handler: h.Initialize,
		},
		{
			Name:        "read_memory_bank",
			Description: "Read all Memory Bank files",
			Parameters:  tools.ObjectSchema(nil),
			Handler:     h.Read,
		},
		{
			Name:        "update_memory_bank_file",
			Description: "Update a specific Memory Bank file",
			Parameters: tools.ObjectSchema(map[string]tools.Property{
				"file_name": {Type: "string", Description: "Name of the file to update (e.g., projectbrief, productContext, etc.)"},
				"content":   {Type: "string", Description: "New content for the file"},
			}, "file_name", "content"),
			Handler: h.UpdateFile,
		},
		{
			Name:        "read_global_rules",
			Description: "Read global rules for Memory Bank",
			Parameters:  tools.ObjectSchema(nil),
			Handler:     h.ReadRules,
		},
		{
			Name:        "update_global_rules",
			Description: "Update global rules for Memory Bank",
			Parameters: tools.ObjectSchema(map[string]tools.Property{
				"content": {Type: "string", Description: "New content for the global rules"},
			}, "content"),
			Handler: h.UpdateRules,
		},
		{
			Name:        "process_memory_bank_command",
			Description: "Process a Memory Bank command",
			Parameters: tools.ObjectSchema(map[string]tools.Property{
				"command": {Type: "string", Description: "Memory Bank command to process"},
				"args":    tools.StringArray("Arguments for the command"),
			}, "command"),
			Handler: h.Command,
		},
	}
}

// RegisterMemoryBankPack registers every memory bank tool.
func RegisterMemoryBankPack(reg *tools.Registry, bank Bank, proc *commands.Processor) error {
	return reg.RegisterAll(MemoryBankPack(bank, proc)...)
}

type bankHandlers struct {
	bank Bank
	proc *commands.Processor
}

type filesResult struct {
	Message string            `json:"message"`
	Files   []memorybank.File `json:"files"`
}

type fileResult struct {
	Message string          `json:"message"`
	File    memorybank.File `json:"file"`
}

type rulesResult struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Path    string `json:"path,omitempty"`
}

func (h *bankHandlers) Initialize(ctx context.Context, params tools.Params) (any, error) {
	files, err := h.bank.Initialize(ctx, memorybank.ProjectInfo{
		Name:         params.String("project_name"),
		Description:  params.String("project_description"),
		Technologies: params.Strings("technologies"),
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to initialize memory bank: %w", err)
	}
	return filesResult{Message: "Memory Bank initialized successfully", Files: files}, nil
}

func (h *bankHandlers) Read(ctx context.Context, _ tools.Params) (any, error) {
	files, err := h.bank.ReadAll(ctx)
	if errors.Is(err, memorybank.ErrNotFound) || (err == nil && len(files) == 0) {
		return filesResult{Message: "Memory Bank not found or empty", Files: []memorybank.File{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Failed to read memory bank: %w", err)
	}
	return filesResult{Message: "Memory Bank read successfully", Files: files}, nil
}

func (h *bankHandlers) UpdateFile(ctx context.Context, params tools.Params) (any, error) {
	name := params.String("file_name")
	file, err := h.bank.UpdateFile(ctx, name, params.String("content"))
	if err != nil {
		return nil, fmt.Errorf("Failed to update memory bank file: %w", err)
	}
	return fileResult{Message: fmt.Sprintf("File %s updated successfully", name), File: file}, nil
}

func (h *bankHandlers) ReadRules(ctx context.Context, _ tools.Params) (any, error) {
	rules, err := h.bank.ReadGlobalRules(ctx)
	if errors.Is(err, memorybank.ErrRulesNotFound) {
		return rulesResult{Message: "Global rules not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Failed to read global rules: %w", err)
	}
	return rulesResult{Message: "Global rules read successfully", Content: rules.Content, Path: rules.Path}, nil
}

func (h *bankHandlers) UpdateRules(ctx context.Context, params tools.Params) (any, error) {
	rules, err := h.bank.UpdateGlobalRules(ctx, params.String("content"))
	if err != nil {
		return nil, fmt.Errorf("Failed to update global rules: %w", err)
	}
	return rulesResult{Message: "Global rules updated successfully", Content: rules.Content, Path: rules.Path}, nil
}

// Command errors from the processor itself are reported verbatim; anything
// raised by the bank underneath is wrapped.
func (h *bankHandlers) Command(ctx context.Context, params tools.Params) (any, error) {
	resp, err := h.proc.Process(ctx, params.String("command"), params.Strings("args"))
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, commands.ErrMissingArguments),
		errors.Is(err, commands.ErrBankNotFound),
		errors.Is(err, commands.ErrUnknownCommand):
		return nil, err
	default:
		return nil, fmt.Errorf("Failed to process memory bank command: %w", err)
	}
}
