// Package file implements driven.ConfigStore as a TOML file under the
// workspace's ~/.sercha config directory.
//
// On top of the generic Get/Set surface, ConfigStore exposes typed
// accessors for the retrieval engine's own tunables — the semantic
// cache threshold, cache capacity, MMR lambda bounds, exploration
// gates, and reranker settings — so cli wiring code and tests read
// domain-shaped values instead of hand-rolled dot-notation keys.
package file
