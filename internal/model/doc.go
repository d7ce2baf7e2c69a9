// Package model holds the types shared by every stockpile component.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Records are keyed by a case-sensitive name; quantity is never negative
//   - Attribute values are a sealed set of variants (see Value)
//   - History and price history entries are immutable once written
//   - Prices use decimal arithmetic, never float64
//   - All JSON tags use snake_case
package model
