// Package metrics provides lock-free counters for authkit observability.
//
// # Design
//
// Counters are stored in fixed uint64 slots and incremented atomically.
// The write path is allocation-free.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import authkit or any sibling package.
//   - Expose global metric registries.
package metrics
