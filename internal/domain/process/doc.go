// Package process models a client's purchase process: the ordered step
// catalog, the financial plan that decides which steps apply, and the pure
// evaluator that derives locks, validation errors, date bounds and the
// next step from a snapshot of step states.
package process
