package school

import (
	"context"
	"errors"
	"time"

	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/maxmusicschool/schoolauth/notify"
	"github.com/maxmusicschool/schoolauth/records"
)

// SessionRevoker drops the refresh session of a user. *schoolauth.Engine
// implements it.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, userID string) error
}

// PasswordHasher hashes passwords of new accounts. *schoolauth.Engine
// implements it.
type PasswordHasher interface {
	HashPassword(pw string) (string, error)
}

// Deps are the collaborators of a Service. Store, Caches and Hasher are
// required.
type Deps struct {
	Store    records.Store
	Caches   *Caches
	Sessions SessionRevoker
	Hasher   PasswordHasher
	Bus      notify.Bus
	Logger   logging.Logger
	Now      func() time.Time
}

// Service implements the student and teacher operations.
type Service struct {
	store    records.Store
	caches   *Caches
	sessions SessionRevoker
	hasher   PasswordHasher
	bus      notify.Bus
	logger   logging.Logger
	now      func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("school: store is required")
	}
	if d.Caches == nil {
		return nil, errors.New("school: caches are required")
	}
	if d.Hasher == nil {
		return nil, errors.New("school: password hasher is required")
	}
	if d.Bus == nil {
		d.Bus = notify.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		store:    d.Store,
		caches:   d.Caches,
		sessions: d.Sessions,
		hasher:   d.Hasher,
		bus:      d.Bus,
		logger:   logging.OrNop(d.Logger).With("component", "school"),
		now:      d.Now,
	}, nil
}

// Ping reports whether the record store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return storeError(s.store.Ping(ctx))
}

func (s *Service) student(ctx context.Context, id string) (records.Student, error) {
	st, err := s.caches.Students.Read(ctx, cache.StudentKey(id), func(ctx context.Context) (records.Student, error) {
		return s.store.StudentByID(ctx, id)
	})
	return st, storeError(err)
}

func (s *Service) teacher(ctx context.Context, id string) (records.Teacher, error) {
	t, err := s.caches.Teachers.Read(ctx, cache.TeacherKey(id), func(ctx context.Context) (records.Teacher, error) {
		return s.store.TeacherByID(ctx, id)
	})
	return t, storeError(err)
}

func (s *Service) batch(ctx context.Context, name string) ([]records.Student, error) {
	students, err := s.caches.Batches.Read(ctx, cache.BatchKey(name), func(ctx context.Context) ([]records.Student, error) {
		return s.store.StudentsByBatch(ctx, name)
	})
	return students, storeError(err)
}

func (s *Service) attendanceLogs(ctx context.Context, studentID string) ([]records.LogEntry, error) {
	logs, err := s.caches.Attendance.Read(ctx, cache.AttendanceKey(studentID), func(ctx context.Context) ([]records.LogEntry, error) {
		return s.store.Logs(ctx, records.LogFilter{Action: records.ActionAttendance, UserID: studentID})
	})
	return logs, storeError(err)
}

func (s *Service) updateStudent(ctx context.Context, id string, fn func(*records.Student) error) (records.Student, records.Student, error) {
	var before records.Student
	after, err := s.caches.Students.Write(ctx, func(ctx context.Context) (records.Student, records.Student, error) {
		b, a, err := s.store.UpdateStudent(ctx, id, fn)
		before = b
		return b, a, err
	})
	if err != nil {
		return records.Student{}, records.Student{}, storeError(err)
	}
	return before, after, nil
}

func (s *Service) publish(ctx context.Context, channel string, m notify.Message) {
	if err := s.bus.Publish(ctx, channel, m); err != nil {
		s.logger.Warn(ctx, "notification dropped", "channel", channel, "event", m.Event, "err", err)
	}
}

func (s *Service) today() time.Time {
	now := s.now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
