package school

import (
	"time"

	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/maxmusicschool/schoolauth/records"
)

// CacheOptions configures NewCaches.
type CacheOptions struct {
	Observer func(cache.Event)
	Logger   logging.Logger
	// IdentityTTL overrides cache.IdentityTTL for student and teacher
	// records. Batch and attendance lists keep their own TTLs.
	IdentityTTL time.Duration
}

// Caches groups the accessors of every school namespace. All accessors share
// one pending-invalidation set, so a deferred invalidation in any namespace
// keeps every namespace off the cache until it is flushed.
type Caches struct {
	Students   *cache.Accessor[records.Student]
	Teachers   *cache.Accessor[records.Teacher]
	Batches    *cache.Accessor[[]records.Student]
	Attendance *cache.Accessor[[]records.LogEntry]
}

func NewCaches(t cache.Transport, opts CacheOptions) *Caches {
	pending := cache.NewPending()
	identityTTL := opts.IdentityTTL
	if identityTTL <= 0 {
		identityTTL = cache.IdentityTTL
	}
	return &Caches{
		Students: cache.NewAccessor(t, cache.Options[records.Student]{
			TTL:       identityTTL,
			IndexKeys: studentKeys,
			Pending:   pending,
			Logger:    opts.Logger,
			Observer:  opts.Observer,
		}),
		Teachers: cache.NewAccessor(t, cache.Options[records.Teacher]{
			TTL:       identityTTL,
			IndexKeys: teacherKeys,
			Pending:   pending,
			Logger:    opts.Logger,
			Observer:  opts.Observer,
		}),
		Batches: cache.NewAccessor(t, cache.Options[[]records.Student]{
			TTL:      cache.BatchTTL,
			Pending:  pending,
			Logger:   opts.Logger,
			Observer: opts.Observer,
		}),
		Attendance: cache.NewAccessor(t, cache.Options[[]records.LogEntry]{
			TTL:      cache.AttendanceTTL,
			Pending:  pending,
			Logger:   opts.Logger,
			Observer: opts.Observer,
		}),
	}
}

func studentKeys(s records.Student) []string {
	if s.ID == "" {
		return nil
	}
	return []string{
		cache.StudentKey(s.ID),
		cache.StudentEmailKey(s.Email),
		cache.BatchKey(s.BatchName),
	}
}

func teacherKeys(t records.Teacher) []string {
	if t.ID == "" {
		return nil
	}
	return []string{
		cache.TeacherKey(t.ID),
		cache.TeacherEmailKey(t.Email),
	}
}
