// Package records implements quantity-bearing inventory records and the
// groups they belong to.
//
// Every mutation runs in one store transaction together with its audit
// entry. Quantities never go negative: additions must be positive, removals
// may not exceed the held quantity, and a removal that reaches exactly zero
// deletes the record.
//
// Expected business outcomes are returned as values, not errors:
//
//	Removal.Failure == model.CodeNotFound              record absent
//	Removal.Failure == model.CodeInsufficientQuantity  not enough stock
//	Delete/SetGroup/UpdateAttributes -> false          record absent
//
// Errors are reserved for invalid arguments (returned before any
// transaction opens) and store-level failures.
package records
