// Package repositories persists users, provider preferences and reconciled film snapshots.
//
// Every repository is constructed with an explicit [*shared.DB] handle. Writes that touch more than
// one row go through [WithTx], which checks out a single connection for the duration of the
// transaction and releases it on every exit path.
//
// Key Implementations:
//   - [UserRepository] : username lookup with lazy, idempotent creation
//   - [ProviderRepository] : per-region provider selection, replaced by set difference
//   - [FilmRepository] : the (user, region) film snapshot and its title-keyed reconciliation
//
// Queries use "?" placeholders and are rebound for postgres by [shared.DB.Rebind].
package repositories
