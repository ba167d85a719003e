// Package accounts implements the lifecycle of a user account: signup with
// email activation, reissue of expired activation keys, email address change
// with confirmation, password change, profile editing, and sign in/out.
//
// The package is persistence backed by bun repositories and exposes each
// lifecycle operation as a command handler that runs its read-check-write
// sequence inside a single transaction. Lifecycle transitions are published
// to an ActivitySink so mailers and audit logs can react without being able
// to unwind the operation.
package accounts
