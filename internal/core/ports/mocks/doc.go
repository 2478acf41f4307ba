// Package mocks provides test doubles for ports interfaces.
//
// These mocks are designed to be simple, thread-safe, in-memory implementations
// suitable for unit testing. Each mock provides:
//
//   - Default behavior that mirrors the PostgreSQL implementation
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for setting state directly
//
// # Usage Example
//
//	func TestEngine(t *testing.T) {
//		store := mocks.NewStore()
//		store.AddModule(domain.Module{ID: 1, Title: "Fasting"})
//
//		engine := lifecycle.New(store, mocks.NewMessenger(), ...)
//		// ... test engine behavior
//	}
//
// # Available Mocks
//
//   - Store: implements every repository port in ports
//   - Messenger: implements ports.Messenger and records calls in order
//   - Embedder: implements ports.Embedder and counts calls
package mocks
