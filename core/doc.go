// Package core implements the runtime evaluation and state-management
// engine: specs compiled into typed runtime structure, chained
// evaluation contexts, DataGroups (plain accumulators and
// session-windowed variants), and the Transformer that routes records
// through them.
//
// A Spec declares, per DataGroup, typed fields whose values are
// derived from incoming records via expressions.  Expressions are
// compiled once (see Interpreter; package interpreters/goja provides
// the implementation) and evaluated per record against an environment
// built from the Transformer's scope chain.
//
// Control flow: a record arrives; Route injects it and the identity
// into the shared context; each DataGroup in declaration order
// evaluates its guard and field expressions, possibly opening,
// rolling over, or closing a window; the resulting field values land
// in the group's own scope, published globally under the group's
// name.  At stream end, Finalize persists every group's state through
// the Store (package store).
//
// Processing is identity-partitioned: a Transformer and everything it
// owns serve exactly one identity and expect records in
// non-decreasing event-time order.
package core
