package records

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	students map[string]Student
	teachers map[string]Teacher
	logs     []LogEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students: make(map[string]Student),
		teachers: make(map[string]Teacher),
		now:      time.Now,
	}
}

func (m *MemoryStore) StudentByID(_ context.Context, id string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) StudentByEmail(_ context.Context, email string) (Student, error) {
	email = NormalizeEmail(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if s.Email == email {
			return s, nil
		}
	}
	return Student{}, ErrNotFound
}

func (m *MemoryStore) Students(_ context.Context) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) StudentsByBatch(ctx context.Context, batchName string) ([]Student, error) {
	all, _ := m.Students(ctx)
	out := all[:0]
	for _, s := range all {
		if s.BatchName == batchName {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateStudent(_ context.Context, s Student) (Student, error) {
	s.Email = NormalizeEmail(s.Email)
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := s.Validate(); err != nil {
		return Student{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.ID]; ok {
		return Student{}, ErrDuplicate
	}
	for _, other := range m.students {
		if other.Email == s.Email {
			return Student{}, ErrDuplicate
		}
	}
	m.students[s.ID] = s
	return s, nil
}

func (m *MemoryStore) UpdateStudent(_ context.Context, id string, fn func(*Student) error) (Student, Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.students[id]
	if !ok {
		return Student{}, Student{}, ErrNotFound
	}
	after := before
	if err := fn(&after); err != nil {
		return Student{}, Student{}, err
	}
	after.ID = before.ID
	after.Email = NormalizeEmail(after.Email)
	if err := after.Validate(); err != nil {
		return Student{}, Student{}, err
	}
	for otherID, other := range m.students {
		if otherID != id && other.Email == after.Email {
			return Student{}, Student{}, ErrDuplicate
		}
	}
	m.students[id] = after
	return before, after, nil
}

func (m *MemoryStore) TeacherByID(_ context.Context, id string) (Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[id]
	if !ok {
		return Teacher{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) TeacherByEmail(_ context.Context, email string) (Teacher, error) {
	email = NormalizeEmail(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.teachers {
		if t.Email == email {
			return t, nil
		}
	}
	return Teacher{}, ErrNotFound
}

func (m *MemoryStore) Teachers(_ context.Context) ([]Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Teacher, 0, len(m.teachers))
	for _, t := range m.teachers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateTeacher(_ context.Context, t Teacher) (Teacher, error) {
	t.Email = NormalizeEmail(t.Email)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		return Teacher{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teachers[t.ID]; ok {
		return Teacher{}, ErrDuplicate
	}
	for _, other := range m.teachers {
		if other.Email == t.Email {
			return Teacher{}, ErrDuplicate
		}
	}
	m.teachers[t.ID] = t
	return t, nil
}

func (m *MemoryStore) UpdateTeacher(_ context.Context, id string, fn func(*Teacher) error) (Teacher, Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.teachers[id]
	if !ok {
		return Teacher{}, Teacher{}, ErrNotFound
	}
	after := before
	if err := fn(&after); err != nil {
		return Teacher{}, Teacher{}, err
	}
	after.ID = before.ID
	after.Email = NormalizeEmail(after.Email)
	if err := after.Validate(); err != nil {
		return Teacher{}, Teacher{}, err
	}
	for otherID, other := range m.teachers {
		if otherID != id && other.Email == after.Email {
			return Teacher{}, Teacher{}, ErrDuplicate
		}
	}
	m.teachers[id] = after
	return before, after, nil
}

func (m *MemoryStore) AppendLog(_ context.Context, e LogEntry) (LogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)
	if err := e.Validate(); err != nil {
		return LogEntry{}, err
	}
	e.Extra = maps.Clone(e.Extra)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.logs {
		if existing.ID == e.ID {
			return LogEntry{}, ErrDuplicate
		}
	}
	m.logs = append(m.logs, e)
	return e, nil
}

func (m *MemoryStore) Logs(_ context.Context, f LogFilter) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []LogEntry
	for _, e := range m.logs {
		if !f.matches(e) {
			continue
		}
		e.Extra = maps.Clone(e.Extra)
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (m *MemoryStore) UpdateLog(_ context.Context, id string, fn func(*LogEntry) error) (LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.logs {
		if m.logs[i].ID != id {
			continue
		}
		next := m.logs[i]
		next.Extra = maps.Clone(next.Extra)
		if err := fn(&next); err != nil {
			return LogEntry{}, err
		}
		next.ID = id
		if err := next.Validate(); err != nil {
			return LogEntry{}, err
		}
		m.logs[i] = next
		return next, nil
	}
	return LogEntry{}, ErrNotFound
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
