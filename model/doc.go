// Package model defines the provider‑agnostic abstractions shared by every
// provider adapter in this module.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall,
//     ToolCallFragment) regardless of the provider's CallConvention
//   - Classify untyped message content once into the closed Content union and
//     reduce it to text with a single total Flatten function
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (model/gigachat, model/openai) implement the Model interface from
// this package so higher layers (session, examples) remain decoupled from
// vendor wire formats.
package model
