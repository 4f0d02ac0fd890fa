// Package vm implements the neon virtual machine.
//
// This package contains:
//   - Tagged value representation and the fifteen heap object kinds
//   - Open-addressing hash table with tombstones
//   - Mark-sweep garbage collector with a weak string intern table
//   - Call frames, closures, upvalues and per-frame exception handlers
//   - Re-entrant bytecode interpreter
//   - Builtin classes, global functions and the os, math and io modules
//   - CBOR blob images of compiled functions
//
// The compiler lives in package compiler and is attached with
// State.UseCompiler, so the VM can also run hand-assembled or loaded blobs.
package vm
