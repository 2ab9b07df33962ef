// Package transform converts extracted or locally owned accounting documents into
// the provider wire schema and validates the result before submission.
//
// Builders are pure: they never perform I/O, and the only non-deterministic input
// is the clock used for generated document numbers.
package transform
