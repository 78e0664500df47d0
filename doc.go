// Package millrace provides specification-driven stream-aggregation
// machinery: declarative specs of per-identity derived state, an
// engine that folds identity-scoped event streams into that state,
// and keyed persistence for the results.
//
// The core code is in package 'core', and a command-line runner is in
// 'cmd/mill'.
package millrace
