// Package orchestrator wires matching, extraction, context building,
// rendering and encoding into a single Convert call. Per-call failures are
// captured in the returned Result instead of being returned as errors.
package orchestrator
