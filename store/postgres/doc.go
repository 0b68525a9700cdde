// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED lease claims, lease-guarded settlements,
// transactional webhook resolution, and embedded SQL migrations.
package postgres
