package records

import (
	"math"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusHold     Status = "Hold"
)

type Mode string

const (
	ModeOffline Mode = "Offline"
	ModeOnline  Mode = "Online"
)

// DateLayout is the calendar date format of start and end dates.
const DateLayout = "2006-01-02"

// Student is one enrolment row.
type Student struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Contact              string  `json:"contact"`
	Email                string  `json:"email"`
	BatchName            string  `json:"batchName"`
	PasswordHash         string  `json:"passwordHash"`
	ClassDays            string  `json:"classDays"`
	TimeFrom             string  `json:"timeFrom"`
	TimeTill             string  `json:"timeTill"`
	Subject              string  `json:"subject"`
	Course               string  `json:"course"`
	Mode                 Mode    `json:"mode"`
	StartDate            string  `json:"startDate"`
	EndDate              string  `json:"endDate"`
	Days                 int     `json:"days"`
	Classes              int     `json:"classes"`
	Status               Status  `json:"status"`
	Teacher              string  `json:"teacher"`
	PaidAmount           float64 `json:"paidAmount"`
	UpcomingAmount       float64 `json:"upcomingAmount"`
	UpcomingDays         int     `json:"upcomingDays"`
	UpcomingClasses      int     `json:"upcomingClasses"`
	Rep                  string  `json:"rep"`
	AttendancePercentage float64 `json:"attendancePercentage"`
}

// Teacher is one staff row. Admin teachers may act on any account.
type Teacher struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	Subject      string `json:"subject"`
	Status       Status `json:"status"`
	Admin        bool   `json:"admin"`
}

type LogAction string

const (
	ActionAttendance      LogAction = "Attendance"
	ActionChangeRequest   LogAction = "Change Request"
	ActionRequestApproved LogAction = "Request Approved"
	ActionRequestRejected LogAction = "Request Rejected"
	ActionClassRating     LogAction = "Class Rating"
	ActionLogin           LogAction = "Login"
	ActionLogout          LogAction = "Logout"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// LogEntry is one activity log line. Status is only set on change requests.
type LogEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    LogAction         `json:"action"`
	UserID    string            `json:"userId"`
	Details   string            `json:"details"`
	Extra     map[string]string `json:"extra,omitempty"`
	Status    RequestStatus     `json:"status,omitempty"`
}

// LogFilter selects log entries. Zero fields match everything. Results are
// ordered oldest first; a positive Limit keeps only the newest Limit entries.
type LogFilter struct {
	Action     LogAction
	UserID     string
	Status     RequestStatus
	ExtraKey   string
	ExtraValue string
	Since      time.Time
	Until      time.Time
	Limit      int
}

func (f LogFilter) matches(e LogEntry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.ExtraKey != "" && e.Extra[f.ExtraKey] != f.ExtraValue {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

var weekdayTokens = map[string]time.Weekday{
	"Sun": time.Sunday,
	"Mon": time.Monday,
	"Tue": time.Tuesday,
	"Wed": time.Wednesday,
	"Thu": time.Thursday,
	"Fri": time.Friday,
	"Sat": time.Saturday,
}

// ParseClassDays parses a dash-separated day list such as "Mon-Wed-Fri".
func ParseClassDays(s string) ([]time.Weekday, error) {
	parts := strings.Split(s, "-")
	out := make([]time.Weekday, 0, len(parts))
	seen := make(map[time.Weekday]bool, len(parts))
	for _, p := range parts {
		d, ok := weekdayTokens[strings.TrimSpace(p)]
		if !ok {
			return nil, invalid("classDays", "contains unknown day "+strings.TrimSpace(p))
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

// ValidClock accepts "15:04" and "3:04 PM" times.
func ValidClock(s string) bool {
	_, err := time.Parse("15:04", s)
	if err == nil {
		return true
	}
	_, err = time.Parse("3:04 PM", s)
	return err == nil
}

// ValidDate accepts DateLayout dates.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// validID rejects ids that could be confused with other key segments.
func validID(id string) bool {
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r == ':' || unicode.IsSpace(r)
	})
}

// Validate checks field shapes and enum values.
func (s Student) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return invalid("id", "is required")
	case !validID(s.ID):
		return invalid("id", "must not contain ':' or spaces")
	case strings.TrimSpace(s.Name) == "":
		return invalid("name", "is required")
	case !validEmail(s.Email):
		return invalid("email", "is not a valid address")
	case s.Email != NormalizeEmail(s.Email):
		return invalid("email", "must be lower case")
	case strings.TrimSpace(s.BatchName) == "":
		return invalid("batchName", "is required")
	case s.PasswordHash == "":
		return invalid("password", "is required")
	case s.Mode != ModeOffline && s.Mode != ModeOnline:
		return invalid("mode", "must be Offline or Online")
	case s.Status != StatusActive && s.Status != StatusInactive && s.Status != StatusHold:
		return invalid("status", "must be Active, Inactive or Hold")
	case !ValidClock(s.TimeFrom):
		return invalid("timeFrom", "is not a clock time")
	case !ValidClock(s.TimeTill):
		return invalid("timeTill", "is not a clock time")
	case s.StartDate != "" && !ValidDate(s.StartDate):
		return invalid("startDate", "is not YYYY-MM-DD")
	case s.EndDate != "" && !ValidDate(s.EndDate):
		return invalid("endDate", "is not YYYY-MM-DD")
	case s.Days < 0 || s.Classes < 0 || s.UpcomingDays < 0 || s.UpcomingClasses < 0:
		return invalid("counts", "must not be negative")
	case s.PaidAmount < 0 || s.UpcomingAmount < 0 || math.IsNaN(s.PaidAmount) || math.IsNaN(s.UpcomingAmount):
		return invalid("amounts", "must not be negative")
	case s.AttendancePercentage < 0 || s.AttendancePercentage > 100 || math.IsNaN(s.AttendancePercentage):
		return invalid("attendancePercentage", "must be within 0-100")
	}
	if _, err := ParseClassDays(s.ClassDays); err != nil {
		return err
	}
	return nil
}

// Validate checks field shapes and enum values.
func (t Teacher) Validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return invalid("id", "is required")
	case !validID(t.ID):
		return invalid("id", "must not contain ':' or spaces")
	case strings.TrimSpace(t.Name) == "":
		return invalid("name", "is required")
	case !validEmail(t.Email):
		return invalid("email", "is not a valid address")
	case t.Email != NormalizeEmail(t.Email):
		return invalid("email", "must be lower case")
	case t.PasswordHash == "":
		return invalid("password", "is required")
	case t.Status != StatusActive && t.Status != StatusHold:
		return invalid("status", "must be Active or Hold")
	}
	return nil
}

// Validate checks the action and request status.
func (e LogEntry) Validate() error {
	switch e.Action {
	case ActionAttendance, ActionChangeRequest, ActionRequestApproved, ActionRequestRejected,
		ActionClassRating, ActionLogin, ActionLogout:
	default:
		return invalid("action", "is unknown")
	}
	if e.UserID == "" {
		return invalid("userId", "is required")
	}
	if e.Action == ActionChangeRequest {
		switch e.Status {
		case RequestPending, RequestApproved, RequestRejected:
		default:
			return invalid("status", "must be pending, approved or rejected")
		}
	} else if e.Status != "" {
		return invalid("status", "is only valid on change requests")
	}
	return nil
}
