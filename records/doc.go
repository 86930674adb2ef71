// Package records is the backing store of students, teachers and the
// activity log.
//
// Records are validated at the boundary: [DecodeStudentRow] and
// [DecodeTeacherRow] reject malformed input with a [RowError] instead of
// defaulting fields, and every Create/Update validates the full record.
//
// Two implementations of [Store] are provided: [MemoryStore] for tests and
// demos, and [SQLStore] over database/sql with the sqlite and pgx drivers
// and embedded goose migrations.
package records
