// Package builtins provides the tools the gateway serves out of the box.
//
// # Memory Bank Pack
//
// MemoryBankPack returns six tools backed by a memory bank and the command
// processor:
//
//   - initialize_memory_bank: create the bank from templates, or reuse an existing one
//   - read_memory_bank: read every bank file
//   - update_memory_bank_file: replace the content of one bank file
//   - read_global_rules: read the editor rules file
//   - update_global_rules: replace the editor rules file
//   - process_memory_bank_command: run "initialize memory bank", "update memory bank" or "follow memory bank"
//
// Handler failures are returned as errors prefixed with "Failed to ...".
// The registry turns them into the error branch of the tool response.
//
// # Registration
//
//	err := builtins.RegisterMemoryBankPack(registry, bank, processor)
//
// Registration is last-write-wins, so a later pack may replace any of these
// tools by name.
package builtins
