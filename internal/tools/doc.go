// Package tools defines the tool model served by the memory bank gateway.
//
// A [Tool] pairs a name and a JSON-Schema-like parameter description with a
// [Handler]. Tools live in a [Registry], which is populated at startup and
// read on every invocation:
//
//	registry := tools.NewRegistry(logger)
//	_ = registry.Register(&tools.Tool{Name: "read_memory_bank", Handler: h})
//	outcome := registry.Execute(ctx, "read_memory_bank", tools.Params{})
//
// Execute never fails at the Go level. Unknown tools, handler errors and
// handler panics are reported through the error branch of the [Outcome], which
// encodes as {"error":{"message":"..."}}.
package tools
