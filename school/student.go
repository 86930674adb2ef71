package school

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/notify"
	"github.com/maxmusicschool/schoolauth/records"
)

// Profile is the public view of a student record.
type Profile struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Contact              string         `json:"contact"`
	Email                string         `json:"email"`
	BatchName            string         `json:"batchName"`
	ClassDays            string         `json:"classDays"`
	TimeFrom             string         `json:"timeFrom"`
	TimeTill             string         `json:"timeTill"`
	Subject              string         `json:"subject"`
	Course               string         `json:"course"`
	Mode                 records.Mode   `json:"mode"`
	StartDate            string         `json:"startDate"`
	EndDate              string         `json:"endDate"`
	Days                 int            `json:"days"`
	Classes              int            `json:"classes"`
	Status               records.Status `json:"status"`
	Teacher              string         `json:"teacher"`
	PaidAmount           float64        `json:"paidAmount"`
	UpcomingAmount       float64        `json:"upcomingAmount"`
	UpcomingDays         int            `json:"upcomingDays"`
	UpcomingClasses      int            `json:"upcomingClasses"`
	AttendancePercentage float64        `json:"attendancePercentage"`
}

func profileOf(s records.Student) Profile {
	return Profile{
		ID:                   s.ID,
		Name:                 s.Name,
		Contact:              s.Contact,
		Email:                s.Email,
		BatchName:            s.BatchName,
		ClassDays:            s.ClassDays,
		TimeFrom:             s.TimeFrom,
		TimeTill:             s.TimeTill,
		Subject:              s.Subject,
		Course:               s.Course,
		Mode:                 s.Mode,
		StartDate:            s.StartDate,
		EndDate:              s.EndDate,
		Days:                 s.Days,
		Classes:              s.Classes,
		Status:               s.Status,
		Teacher:              s.Teacher,
		PaidAmount:           s.PaidAmount,
		UpcomingAmount:       s.UpcomingAmount,
		UpcomingDays:         s.UpcomingDays,
		UpcomingClasses:      s.UpcomingClasses,
		AttendancePercentage: s.AttendancePercentage,
	}
}

// Timing is a class slot.
type Timing struct {
	From string `json:"from"`
	Till string `json:"till"`
}

func (t Timing) String() string {
	return t.From + " - " + t.Till
}

type BatchInfo struct {
	Name            string       `json:"name"`
	Teacher         string       `json:"teacher"`
	Subject         string       `json:"subject"`
	Course          string       `json:"course"`
	ClassDays       string       `json:"classDays"`
	Timing          Timing       `json:"timing"`
	Mode            records.Mode `json:"mode"`
	StartDate       string       `json:"startDate"`
	EndDate         string       `json:"endDate"`
	TotalClasses    int          `json:"totalClasses"`
	UpcomingClasses int          `json:"upcomingClasses"`
}

func batchInfoOf(s records.Student) BatchInfo {
	return BatchInfo{
		Name:            s.BatchName,
		Teacher:         s.Teacher,
		Subject:         s.Subject,
		Course:          s.Course,
		ClassDays:       s.ClassDays,
		Timing:          Timing{From: s.TimeFrom, Till: s.TimeTill},
		Mode:            s.Mode,
		StartDate:       s.StartDate,
		EndDate:         s.EndDate,
		TotalClasses:    s.Classes,
		UpcomingClasses: s.UpcomingClasses,
	}
}

type StudentDashboard struct {
	Profile struct {
		ID      string         `json:"id"`
		Name    string         `json:"name"`
		Email   string         `json:"email"`
		Contact string         `json:"contact"`
		Status  records.Status `json:"status"`
	} `json:"profile"`
	Attendance struct {
		Percentage      float64 `json:"percentage"`
		TotalClasses    int     `json:"totalClasses"`
		UpcomingClasses int     `json:"upcomingClasses"`
		DaysRemaining   int     `json:"daysRemaining"`
	} `json:"attendance"`
	Batch    BatchInfo `json:"batch"`
	Payment  Payment   `json:"payment"`
	Schedule struct {
		NextClass string `json:"nextClass,omitempty"`
		ClassDays string `json:"classDays"`
		Timing    string `json:"timing"`
	} `json:"schedule"`
}

func (s *Service) Dashboard(ctx context.Context, studentID string) (StudentDashboard, error) {
	st, err := s.student(ctx, studentID)
	if err != nil {
		return StudentDashboard{}, err
	}

	var d StudentDashboard
	d.Profile.ID = st.ID
	d.Profile.Name = st.Name
	d.Profile.Email = st.Email
	d.Profile.Contact = st.Contact
	d.Profile.Status = st.Status
	d.Attendance.Percentage = st.AttendancePercentage
	d.Attendance.TotalClasses = st.Classes
	d.Attendance.UpcomingClasses = st.UpcomingClasses
	d.Attendance.DaysRemaining = st.UpcomingDays
	d.Batch = batchInfoOf(st)
	d.Payment = paymentOf(st)
	d.Schedule.ClassDays = st.ClassDays
	d.Schedule.Timing = Timing{From: st.TimeFrom, Till: st.TimeTill}.String()
	if next, ok := nextClassDate(s.today(), st.ClassDays); ok {
		d.Schedule.NextClass = next.Format(records.DateLayout)
	}
	return d, nil
}

// nextClassDate returns the first class day strictly after today.
func nextClassDate(today time.Time, classDays string) (time.Time, bool) {
	days, err := records.ParseClassDays(classDays)
	if err != nil || len(days) == 0 {
		return time.Time{}, false
	}
	for i := 1; i <= 7; i++ {
		d := today.AddDate(0, 0, i)
		for _, wd := range days {
			if d.Weekday() == wd {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func (s *Service) Profile(ctx context.Context, studentID string) (Profile, error) {
	st, err := s.student(ctx, studentID)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(st), nil
}

// ProfileUpdate lists the fields a student may change. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Name    *string `json:"name"`
	Contact *string `json:"contact"`
}

func (s *Service) UpdateProfile(ctx context.Context, studentID string, u ProfileUpdate) (Profile, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return Profile{}, invalidInput("name must not be empty")
	}
	_, after, err := s.updateStudent(ctx, studentID, func(st *records.Student) error {
		if u.Name != nil {
			st.Name = strings.TrimSpace(*u.Name)
		}
		if u.Contact != nil {
			st.Contact = strings.TrimSpace(*u.Contact)
		}
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return profileOf(after), nil
}

type Schedule struct {
	BatchName       string       `json:"batchName"`
	ClassDays       []string     `json:"classDays"`
	Timing          Timing       `json:"timing"`
	Subject         string       `json:"subject"`
	Course          string       `json:"course"`
	Mode            records.Mode `json:"mode"`
	Teacher         string       `json:"teacher"`
	StartDate       string       `json:"startDate"`
	EndDate         string       `json:"endDate"`
	TotalClasses    int          `json:"totalClasses"`
	UpcomingClasses int          `json:"upcomingClasses"`
}

func (s *Service) Schedule(ctx context.Context, studentID string) (Schedule, error) {
	st, err := s.student(ctx, studentID)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{
		BatchName:       st.BatchName,
		ClassDays:       strings.Split(st.ClassDays, "-"),
		Timing:          Timing{From: st.TimeFrom, Till: st.TimeTill},
		Subject:         st.Subject,
		Course:          st.Course,
		Mode:            st.Mode,
		Teacher:         st.Teacher,
		StartDate:       st.StartDate,
		EndDate:         st.EndDate,
		TotalClasses:    st.Classes,
		UpcomingClasses: st.UpcomingClasses,
	}, nil
}

// AttendanceLog is one attendance mark.
type AttendanceLog struct {
	Timestamp time.Time `json:"timestamp"`
	StudentID string    `json:"studentId"`
	Batch     string    `json:"batch"`
	Status    string    `json:"status"`
	Date      string    `json:"date"`
	Details   string    `json:"details"`
}

func attendanceLogOf(e records.LogEntry) AttendanceLog {
	return AttendanceLog{
		Timestamp: e.Timestamp,
		StudentID: e.UserID,
		Batch:     e.Extra["batch"],
		Status:    e.Extra["status"],
		Date:      e.Extra["date"],
		Details:   e.Details,
	}
}

// inMonth reports whether the class date of a log falls in month/year. A
// zero month or year matches any.
func inMonth(e records.LogEntry, month, year int) bool {
	if month == 0 && year == 0 {
		return true
	}
	when := e.Timestamp
	if d, err := time.Parse(records.DateLayout, e.Extra["date"]); err == nil {
		when = d
	}
	if month != 0 && int(when.Month()) != month {
		return false
	}
	return year == 0 || when.Year() == year
}

type AttendanceReport struct {
	OverallPercentage float64         `json:"overallPercentage"`
	TotalClasses      int             `json:"totalClasses"`
	UpcomingClasses   int             `json:"upcomingClasses"`
	Logs              []AttendanceLog `json:"logs"`
}

// Attendance returns the student's attendance history, optionally limited
// to one month. month and year are zero for no filter.
func (s *Service) Attendance(ctx context.Context, studentID string, month, year int) (AttendanceReport, error) {
	if month < 0 || month > 12 || year < 0 {
		return AttendanceReport{}, invalidInput("month must be 1-12")
	}
	st, err := s.student(ctx, studentID)
	if err != nil {
		return AttendanceReport{}, err
	}
	logs, err := s.attendanceLogs(ctx, studentID)
	if err != nil {
		return AttendanceReport{}, err
	}

	report := AttendanceReport{
		OverallPercentage: st.AttendancePercentage,
		TotalClasses:      st.Classes,
		UpcomingClasses:   st.UpcomingClasses,
		Logs:              []AttendanceLog{},
	}
	for _, e := range logs {
		if inMonth(e, month, year) {
			report.Logs = append(report.Logs, attendanceLogOf(e))
		}
	}
	return report, nil
}

// ChangeRequest asks for a move to another batch or slot.
type ChangeRequest struct {
	NewBatchName string `json:"newBatchName"`
	NewTiming    Timing `json:"newTiming"`
	NewDays      string `json:"newDays"`
	Reason       string `json:"reason,omitempty"`
}

func (r ChangeRequest) validate() error {
	switch {
	case strings.TrimSpace(r.NewBatchName) == "":
		return invalidInput("newBatchName is required")
	case !records.ValidClock(r.NewTiming.From) || !records.ValidClock(r.NewTiming.Till):
		return invalidInput("newTiming must be clock times")
	}
	if _, err := records.ParseClassDays(r.NewDays); err != nil {
		return invalidInput("newDays: %v", err)
	}
	return nil
}

const changeTypeBatch = "Batch Change"

// RequestChange records a pending change request and tells the teachers.
// It returns the request id.
func (s *Service) RequestChange(ctx context.Context, studentID string, r ChangeRequest) (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}
	st, err := s.student(ctx, studentID)
	if err != nil {
		return "", err
	}

	oldValue := fmt.Sprintf("%s (%s-%s)", st.BatchName, st.TimeFrom, st.TimeTill)
	newValue := fmt.Sprintf("%s (%s-%s)", r.NewBatchName, r.NewTiming.From, r.NewTiming.Till)
	reason := strings.TrimSpace(r.Reason)
	if reason == "" {
		reason = "No reason provided"
	}

	entry, err := s.store.AppendLog(ctx, records.LogEntry{
		Timestamp: s.now(),
		Action:    records.ActionChangeRequest,
		UserID:    st.ID,
		Details:   fmt.Sprintf("%s: %s -> %s", changeTypeBatch, oldValue, newValue),
		Status:    records.RequestPending,
		Extra: map[string]string{
			"type":         changeTypeBatch,
			"oldValue":     oldValue,
			"newValue":     newValue,
			"newBatchName": strings.TrimSpace(r.NewBatchName),
			"newTimeFrom":  r.NewTiming.From,
			"newTimeTill":  r.NewTiming.Till,
			"newDays":      r.NewDays,
			"reason":       reason,
			"teacher":      st.Teacher,
		},
	})
	if err != nil {
		return "", storeError(err)
	}

	s.publish(ctx, notify.TeachersChannel, notify.Message{
		Event: notify.EventChangeRequested,
		Data: map[string]string{
			"requestId":   entry.ID,
			"studentId":   st.ID,
			"studentName": st.Name,
			"teacher":     st.Teacher,
		},
	})
	return entry.ID, nil
}

type Payment struct {
	PaidAmount      float64        `json:"paidAmount"`
	UpcomingAmount  float64        `json:"upcomingAmount"`
	Status          string         `json:"status"`
	UpcomingDays    int            `json:"upcomingDays"`
	UpcomingClasses int            `json:"upcomingClasses"`
	AccountStatus   records.Status `json:"accountStatus"`
	Message         string         `json:"message,omitempty"`
}

func paymentOf(st records.Student) Payment {
	p := Payment{
		PaidAmount:      st.PaidAmount,
		UpcomingAmount:  st.UpcomingAmount,
		Status:          "paid",
		UpcomingDays:    st.UpcomingDays,
		UpcomingClasses: st.UpcomingClasses,
		AccountStatus:   st.Status,
	}
	if st.UpcomingAmount > 0 {
		p.Status = "pending"
	}
	if st.Status == records.StatusHold {
		p.Message = "Your account is on hold. Please pay ₹" +
			strconv.FormatFloat(st.UpcomingAmount, 'f', -1, 64) + " to continue your classes."
	}
	return p
}

func (s *Service) PaymentInfo(ctx context.Context, studentID string) (Payment, error) {
	st, err := s.student(ctx, studentID)
	if err != nil {
		return Payment{}, err
	}
	return paymentOf(st), nil
}

// Rating is a student's rating of one class.
type Rating struct {
	Date     string `json:"date"`
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

func (s *Service) RateClass(ctx context.Context, studentID string, r Rating) error {
	if r.Rating < 1 || r.Rating > 5 {
		return invalidInput("rating must be between 1 and 5")
	}
	if !records.ValidDate(r.Date) {
		return invalidInput("date must be YYYY-MM-DD")
	}
	if _, err := s.student(ctx, studentID); err != nil {
		return err
	}
	_, err := s.store.AppendLog(ctx, records.LogEntry{
		Timestamp: s.now(),
		Action:    records.ActionClassRating,
		UserID:    studentID,
		Details:   fmt.Sprintf("Rating: %d/5", r.Rating),
		Extra: map[string]string{
			"date":     r.Date,
			"rating":   strconv.Itoa(r.Rating),
			"feedback": strings.TrimSpace(r.Feedback),
		},
	})
	return storeError(err)
}

// UpcomingClass is one scheduled class date.
type UpcomingClass struct {
	Date      string       `json:"date"`
	Day       string       `json:"day"`
	Time      string       `json:"time"`
	BatchName string       `json:"batchName"`
	Teacher   string       `json:"teacher"`
	Subject   string       `json:"subject"`
	Mode      records.Mode `json:"mode"`
}

const maxUpcomingClasses = 10

// UpcomingClasses lists the next class dates starting today, at most ten
// and never more than the student's remaining classes or past the end date.
func (s *Service) UpcomingClasses(ctx context.Context, studentID string) ([]UpcomingClass, error) {
	st, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	days, err := records.ParseClassDays(st.ClassDays)
	if err != nil {
		return nil, storeError(err)
	}

	limit := min(st.UpcomingClasses, maxUpcomingClasses)
	var end time.Time
	if st.EndDate != "" {
		end, _ = time.ParseInLocation(records.DateLayout, st.EndDate, s.now().Location())
	}

	out := []UpcomingClass{}
	day := s.today()
	for i := 0; len(out) < limit && i < 7*(maxUpcomingClasses+1); i++ {
		d := day.AddDate(0, 0, i)
		if !end.IsZero() && d.After(end) {
			break
		}
		for _, wd := range days {
			if d.Weekday() != wd {
				continue
			}
			out = append(out, UpcomingClass{
				Date:      d.Format(records.DateLayout),
				Day:       d.Format("Mon"),
				Time:      Timing{From: st.TimeFrom, Till: st.TimeTill}.String(),
				BatchName: st.BatchName,
				Teacher:   st.Teacher,
				Subject:   st.Subject,
				Mode:      st.Mode,
			})
			break
		}
	}
	return out, nil
}

// invalidateAttendance drops the cached attendance history of students.
func (s *Service) invalidateAttendance(ctx context.Context, studentIDs ...string) {
	keys := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		keys = append(keys, cache.AttendanceKey(id))
	}
	s.caches.Attendance.Invalidate(ctx, keys...)
}
