// ABOUTME: Tests for memory bank pack tool handlers.
// ABOUTME: Uses a real memory bank rooted in a temp directory.

package builtins

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/2389/membank/internal/commands"
	"github.com/2389/membank/internal/memorybank"
	"github.com/2389/membank/internal/tools"
)

func newTestBank(t *testing.T) *memorybank.Manager {
	t.Helper()
	m, err := memorybank.NewManager(memorybank.Options{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func newTestRegistry(t *testing.T, bank Bank) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(nil)
	if err := RegisterMemoryBankPack(reg, bank, commands.NewProcessor(bank, nil)); err != nil {
		t.Fatalf("RegisterMemoryBankPack: %v", err)
	}
	return reg
}

// call executes name and decodes the JSON form of its outcome.
func call(t *testing.T, reg *tools.Registry, name string, params tools.Params) map[string]any {
	t.Helper()
	out := reg.Execute(context.Background(), name, params)
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal outcome: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	return decoded
}

func resultOf(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	if e, ok := out["error"]; ok {
		t.Fatalf("unexpected error outcome: %v", e)
	}
	res, ok := out["result"].(map[string]any)
	if !ok {
		t.Fatalf("result is not an object: %v", out)
	}
	return res
}

func errorMessage(t *testing.T, out map[string]any) string {
	t.Helper()
	e, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error outcome, got %v", out)
	}
	msg, _ := e["message"].(string)
	return msg
}

func TestMemoryBankPack_Catalog(t *testing.T) {
	pack := MemoryBankPack(newTestBank(t), nil)

	want := []string{
		"initialize_memory_bank",
		"read_memory_bank",
		"update_memory_bank_file",
		"read_global_rules",
		"update_global_rules",
		"process_memory_bank_command",
	}
	if len(pack) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(pack))
	}
	for i, tool := range pack {
		if tool.Name != want[i] {
			t.Errorf("tool %d: expected %s, got %s", i, want[i], tool.Name)
		}
		if tool.Parameters.Type != "object" {
			t.Errorf("%s: schema type %q", tool.Name, tool.Parameters.Type)
		}
	}

	tech := pack[0].Parameters.Properties["technologies"]
	if tech.Type != "array" || tech.Items == nil || tech.Items.Type != "string" {
		t.Errorf("technologies must be an array of strings: %+v", tech)
	}
}

func TestInitializeMemoryBank(t *testing.T) {
	reg := newTestRegistry(t, newTestBank(t))

	res := resultOf(t, call(t, reg, "initialize_memory_bank", tools.Params{
		"project_name":        "Acme",
		"project_description": "Rockets",
		"technologies":        []any{"Go"},
	}))

	if res["message"] != "Memory Bank initialized successfully" {
		t.Errorf("unexpected message: %v", res["message"])
	}
	files, _ := res["files"].([]any)
	if len(files) != 7 {
		t.Errorf("expected 7 files, got %d", len(files))
	}
}

func TestReadMemoryBank_Missing(t *testing.T) {
	reg := newTestRegistry(t, newTestBank(t))

	res := resultOf(t, call(t, reg, "read_memory_bank", nil))
	if res["message"] != "Memory Bank not found or empty" {
		t.Errorf("unexpected message: %v", res["message"])
	}
	files, ok := res["files"].([]any)
	if !ok || len(files) != 0 {
		t.Errorf("expected empty file list, got %v", res["files"])
	}
}

func TestReadMemoryBank_AfterInitialize(t *testing.T) {
	reg := newTestRegistry(t, newTestBank(t))
	call(t, reg, "initialize_memory_bank", tools.Params{"project_name": "a", "project_description": "b"})

	res := resultOf(t, call(t, reg, "read_memory_bank", tools.Params{}))
	if res["message"] != "Memory Bank read successfully" {
		t.Errorf("unexpected message: %v", res["message"])
	}
}

func TestUpdateMemoryBankFile(t *testing.T) {
	reg := newTestRegistry(t, newTestBank(t))
	call(t, reg, "initialize_memory_bank", tools.Params{"project_name": "a", "project_description": "b"})

	res := resultOf(t, call(t, reg, "update_memory_bank_file", tools.Params{
		"file_name": "progress",
		"content":   "# Progress\n\nAll done.\n",
	}))
	if res["message"] != "File progress updated successfully" {
		t.Errorf("unexpected message: %v", res["message"])
	}
	file, _ := res["file"].(map[string]any)
	if file["content"] != "# Progress\n\nAll done.\n" {
		t.Errorf("unexpected content: %v", file["content"])
	}
}

func TestUpdateMemoryBankFile_Unknown(t *testing.T) {
	reg := newTestRegistry(t, newTestBank(t))

	msg := errorMessage(t, call(t, reg, "update_memory_bank_file", tools.Params{"file_name": "nope", "content": "x"}))
	if msg != "Failed to update memory bank file: File nope not found in memory bank" {
		t.Errorf("unexpected error: %s", msg)
	}
}

func TestGlobalRulesTools(t *testing.T) {
	reg := newTestRegistry(t, newTestBank(t))

	res := resultOf(t, call(t, reg, "read_global_rules", nil))
	if res["message"] != "Global rules not found" || res["content"] != "" {
		t.Errorf("unexpected missing-rules result: %v", res)
	}

	res = resultOf(t, call(t, reg, "update_global_rules", tools.Params{"content": "# Rules"}))
	if res["message"] != "Global rules updated successfully" {
		t.Errorf("unexpected message: %v", res["message"])
	}
	path, _ := res["path"].(string)
	if !strings.HasSuffix(path, "memory-bank.mdc") {
		t.Errorf("unexpected path: %s", path)
	}

	res = resultOf(t, call(t, reg, "read_global_rules", nil))
	if res["content"] != "# Rules" {
		t.Errorf("unexpected content: %v", res["content"])
	}
}

func TestProcessMemoryBankCommand_MissingArguments(t *testing.T) {
	bank := &countingBank{Bank: newTestBank(t)}
	reg := newTestRegistry(t, bank)

	msg := errorMessage(t, call(t, reg, "process_memory_bank_command", tools.Params{
		"command": "initialize memory bank",
		"args":    []any{"only-name"},
	}))
	if !strings.Contains(msg, "Missing required arguments") {
		t.Errorf("unexpected error: %s", msg)
	}
	if bank.inits != 0 {
		t.Errorf("bank initialize called %d times", bank.inits)
	}
}

func TestProcessMemoryBankCommand_Flow(t *testing.T) {
	reg := newTestRegistry(t, newTestBank(t))

	msg := errorMessage(t, call(t, reg, "process_memory_bank_command", tools.Params{"command": "follow memory bank"}))
	if msg != "Memory Bank not found or empty" {
		t.Errorf("unexpected error: %s", msg)
	}

	res := resultOf(t, call(t, reg, "process_memory_bank_command", tools.Params{
		"command": "Initialize Memory Bank",
		"args":    []any{"Acme", "Rockets", "Go"},
	}))
	if res["message"] != "Memory Bank initialized successfully" {
		t.Errorf("unexpected message: %v", res["message"])
	}

	res = resultOf(t, call(t, reg, "process_memory_bank_command", tools.Params{"command": "follow memory bank"}))
	if res["message"] != "Memory Bank files loaded" {
		t.Errorf("unexpected message: %v", res["message"])
	}

	msg = errorMessage(t, call(t, reg, "process_memory_bank_command", tools.Params{"command": "forget memory bank"}))
	if msg != "Unknown command: forget memory bank" {
		t.Errorf("unexpected error: %s", msg)
	}
}

// countingBank counts Initialize calls.
type countingBank struct {
	Bank
	inits int
}

func (b *countingBank) Initialize(ctx context.Context, info memorybank.ProjectInfo) ([]memorybank.File, error) {
	b.inits++
	return b.Bank.Initialize(ctx, info)
}
