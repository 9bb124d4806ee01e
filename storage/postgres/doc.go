// Package postgres provides a PostgreSQL/pgvector implementation of the
// chunk store for deployments that prefer a relational backend over the
// embedded BadgerDB one. The schema is created on open.
package postgres
