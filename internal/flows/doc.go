// Package flows holds the recovery state machine's step logic, decoupled
// from the engine through an injected dependency set. The engine owns the
// sentinel errors its callers match against, so flows receive them in
// Deps.Errors instead of importing the root package.
//
// Every step runs its gates in a fixed order and stops at the first failure.
// A failed gate never advances the session state.
package flows
