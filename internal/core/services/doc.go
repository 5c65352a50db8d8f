// Package services implements the driving port interfaces. Services
// contain the retrieval pipeline's business logic and orchestrate calls
// to driven ports (adapters).
//
// Services depend only on the domain and ports packages, plus a small
// set of pure-Go concurrency and caching libraries (ants worker pools,
// ristretto) — never on a concrete adapter package.
package services
