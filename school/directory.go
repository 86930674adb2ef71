package school

import (
	"context"
	"errors"
	"fmt"

	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/records"
)

// Directory resolves login identities from the record store through the
// identity caches. Student and teacher ids share one namespace.
type Directory struct {
	store  records.Store
	caches *Caches
}

var (
	_ schoolauth.Directory        = (*Directory)(nil)
	_ schoolauth.PasswordUpgrader = (*Directory)(nil)
)

func NewDirectory(store records.Store, caches *Caches) *Directory {
	return &Directory{store: store, caches: caches}
}

func (d *Directory) LookupByEmail(ctx context.Context, role schoolauth.Role, email string) (schoolauth.User, error) {
	email = records.NormalizeEmail(email)
	switch role {
	case schoolauth.RoleStudent:
		s, err := d.caches.Students.Read(ctx, cache.StudentEmailKey(email), func(ctx context.Context) (records.Student, error) {
			return d.store.StudentByEmail(ctx, email)
		})
		if err != nil {
			return schoolauth.User{}, lookupError(err)
		}
		return studentUser(s), nil
	case schoolauth.RoleTeacher, schoolauth.RoleAdmin:
		t, err := d.caches.Teachers.Read(ctx, cache.TeacherEmailKey(email), func(ctx context.Context) (records.Teacher, error) {
			return d.store.TeacherByEmail(ctx, email)
		})
		if err != nil {
			return schoolauth.User{}, lookupError(err)
		}
		return teacherUser(t), nil
	}
	return schoolauth.User{}, fmt.Errorf("%w: role %q", schoolauth.ErrUserNotFound, role)
}

func (d *Directory) LookupByID(ctx context.Context, userID string) (schoolauth.User, error) {
	s, err := d.student(ctx, userID)
	if err == nil {
		return studentUser(s), nil
	}
	if !errors.Is(err, records.ErrNotFound) {
		return schoolauth.User{}, lookupError(err)
	}

	t, err := d.teacher(ctx, userID)
	if err != nil {
		return schoolauth.User{}, lookupError(err)
	}
	return teacherUser(t), nil
}

// UpgradePasswordHash stores a rehashed password and invalidates the
// cached identity.
func (d *Directory) UpgradePasswordHash(ctx context.Context, userID string, role schoolauth.Role, hash string) error {
	var err error
	if role == schoolauth.RoleStudent {
		_, err = d.caches.Students.Write(ctx, func(ctx context.Context) (records.Student, records.Student, error) {
			return d.store.UpdateStudent(ctx, userID, func(s *records.Student) error {
				s.PasswordHash = hash
				return nil
			})
		})
	} else {
		_, err = d.caches.Teachers.Write(ctx, func(ctx context.Context) (records.Teacher, records.Teacher, error) {
			return d.store.UpdateTeacher(ctx, userID, func(t *records.Teacher) error {
				t.PasswordHash = hash
				return nil
			})
		})
	}
	return err
}

func (d *Directory) student(ctx context.Context, id string) (records.Student, error) {
	return d.caches.Students.Read(ctx, cache.StudentKey(id), func(ctx context.Context) (records.Student, error) {
		return d.store.StudentByID(ctx, id)
	})
}

func (d *Directory) teacher(ctx context.Context, id string) (records.Teacher, error) {
	return d.caches.Teachers.Read(ctx, cache.TeacherKey(id), func(ctx context.Context) (records.Teacher, error) {
		return d.store.TeacherByID(ctx, id)
	})
}

func lookupError(err error) error {
	if errors.Is(err, records.ErrNotFound) {
		return fmt.Errorf("%w: %v", schoolauth.ErrUserNotFound, err)
	}
	return err
}

func studentUser(s records.Student) schoolauth.User {
	u := schoolauth.User{
		ID:           s.ID,
		Email:        s.Email,
		Name:         s.Name,
		Role:         schoolauth.RoleStudent,
		PasswordHash: s.PasswordHash,
		Status:       accountStatus(s.Status),
	}
	if s.Status == records.StatusHold {
		u.PendingAmount = s.UpcomingAmount
	}
	return u
}

func teacherUser(t records.Teacher) schoolauth.User {
	role := schoolauth.RoleTeacher
	if t.Admin {
		role = schoolauth.RoleAdmin
	}
	return schoolauth.User{
		ID:           t.ID,
		Email:        t.Email,
		Name:         t.Name,
		Role:         role,
		PasswordHash: t.PasswordHash,
		Status:       accountStatus(t.Status),
	}
}

func accountStatus(s records.Status) schoolauth.AccountStatus {
	switch s {
	case records.StatusActive:
		return schoolauth.AccountActive
	case records.StatusHold:
		return schoolauth.AccountOnHold
	}
	return schoolauth.AccountInactive
}
