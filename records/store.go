package records

import "context"

// Store is the keyed-record interface behind the cache accessors.
//
// Lookups return ErrNotFound for missing rows. Email lookups are
// case-insensitive. Update functions receive a copy of the current record;
// the store validates the result and returns both versions so callers can
// invalidate every derived cache key.
type Store interface {
	StudentByID(ctx context.Context, id string) (Student, error)
	StudentByEmail(ctx context.Context, email string) (Student, error)
	Students(ctx context.Context) ([]Student, error)
	StudentsByBatch(ctx context.Context, batchName string) ([]Student, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	UpdateStudent(ctx context.Context, id string, fn func(*Student) error) (before, after Student, err error)

	TeacherByID(ctx context.Context, id string) (Teacher, error)
	TeacherByEmail(ctx context.Context, email string) (Teacher, error)
	Teachers(ctx context.Context) ([]Teacher, error)
	CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	UpdateTeacher(ctx context.Context, id string, fn func(*Teacher) error) (before, after Teacher, err error)

	AppendLog(ctx context.Context, e LogEntry) (LogEntry, error)
	Logs(ctx context.Context, f LogFilter) ([]LogEntry, error)
	UpdateLog(ctx context.Context, id string, fn func(*LogEntry) error) (LogEntry, error)

	Ping(ctx context.Context) error
}
