package cache

import (
	"strings"
	"time"
)

// TTLs of the school namespaces.
const (
	IdentityTTL   = 300 * time.Second
	BatchTTL      = 600 * time.Second
	AttendanceTTL = 1800 * time.Second
)

// StudentKey and the other builders put the lookup field after the entity
// kind, so an id key can never equal an email key.
func StudentKey(id string) string {
	return "student:id:" + id
}

func StudentEmailKey(email string) string {
	return "student:email:" + NormalizeEmail(email)
}

func TeacherKey(id string) string {
	return "teacher:id:" + id
}

func TeacherEmailKey(email string) string {
	return "teacher:email:" + NormalizeEmail(email)
}

func BatchKey(name string) string {
	return "batch:" + name
}

func AttendanceKey(studentID string) string {
	return "attendance:" + studentID
}

// NormalizeEmail lower-cases and trims an address for use in keys and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
