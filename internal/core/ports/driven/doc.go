// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Store: chunk persistence, full-text index, retrieval log, metadata
//   - ConfigStore: engine configuration
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - Reranker: cross-encoder reranking. Without it, the fused+diversified
//     list is returned as the final result.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
