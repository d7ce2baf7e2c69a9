// Package store owns the single SQLite handle behind the inventory engine.
//
// The Guard is the only way to reach the database. It:
//   - Opens the connection lazily, retrying a failed open with a constant
//     backoff before reporting STORE_UNAVAILABLE
//   - Serializes every transaction body behind one process-wide mutex
//   - Commits when the body returns nil and rolls back otherwise, returning
//     the body's error even when the rollback fails
//   - Takes whole-file backups while no transaction is in flight
//
// # Single Writer
//
// Only one transaction body runs at a time. This gives up read parallelism
// in exchange for never having two writers race on the same file. Do not
// replace the mutex with finer-grained locking. Transactions are not
// re-entrant: calling Guard.Tx from inside a body deadlocks.
//
// # Database Configuration
//
//   - WAL mode: crash recovery on next open
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout: bounded wait for an OS-level file lock (default 5s)
//   - BEGIN IMMEDIATE: lock contention surfaces at BEGIN, where it is retried
//   - foreign_keys=ON
//
// # Tables
//
//	items          (name PK, quantity, group_name, attributes)
//	item_groups    (name PK, description, created_at)
//	prices         (name, supplier, price, updated_at, is_unit_price) PK(name, supplier)
//	price_history  (id AUTOINCREMENT, name, price, supplier, timestamp, is_unit_price, quantity_at_time)
//	history        (id AUTOINCREMENT, action, name, quantity, group_name, timestamp)
//
// Timestamps are stored as fixed-width UTC text (model.TimeLayout) so they
// sort and compare correctly as strings. Prices are stored as decimal text.
// The default supplier is stored as the empty string because SQLite treats
// NULLs as distinct inside a primary key.
package store
