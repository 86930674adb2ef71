package school

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/notify"
	"github.com/maxmusicschool/schoolauth/password"
	"github.com/maxmusicschool/schoolauth/records"
)

// BatchStudent is a student as listed in a teacher's batch.
type BatchStudent struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Contact              string         `json:"contact"`
	Email                string         `json:"email"`
	Status               records.Status `json:"status"`
	AttendancePercentage float64        `json:"attendancePercentage"`
}

// Batch groups the students sharing a batch name and time slot.
type Batch struct {
	BatchName string         `json:"batchName"`
	Subject   string         `json:"subject"`
	Course    string         `json:"course"`
	ClassDays string         `json:"classDays"`
	TimeFrom  string         `json:"timeFrom"`
	TimeTill  string         `json:"timeTill"`
	Mode      records.Mode   `json:"mode"`
	Students  []BatchStudent `json:"students"`
}

func batchStudentOf(s records.Student) BatchStudent {
	return BatchStudent{
		ID:                   s.ID,
		Name:                 s.Name,
		Contact:              s.Contact,
		Email:                s.Email,
		Status:               s.Status,
		AttendancePercentage: s.AttendancePercentage,
	}
}

// groupBatches groups students by batch name and slot, ordered by name and
// start time.
func groupBatches(students []records.Student) []Batch {
	index := make(map[string]int)
	var out []Batch
	for _, s := range students {
		key := s.BatchName + "\x00" + s.TimeFrom + "\x00" + s.TimeTill
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Batch{
				BatchName: s.BatchName,
				Subject:   s.Subject,
				Course:    s.Course,
				ClassDays: s.ClassDays,
				TimeFrom:  s.TimeFrom,
				TimeTill:  s.TimeTill,
				Mode:      s.Mode,
			})
		}
		out[i].Students = append(out[i].Students, batchStudentOf(s))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BatchName != out[j].BatchName {
			return out[i].BatchName < out[j].BatchName
		}
		return out[i].TimeFrom < out[j].TimeFrom
	})
	return out
}

// teaches reports whether t may act on s. Admin teachers act on everyone.
func teaches(t records.Teacher, s records.Student) bool {
	return t.Admin || s.Teacher == t.Name
}

func (s *Service) studentsOf(ctx context.Context, t records.Teacher) ([]records.Student, error) {
	all, err := s.store.Students(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	out := all[:0]
	for _, st := range all {
		if teaches(t, st) {
			out = append(out, st)
		}
	}
	return out, nil
}

// Batches lists the batches of the teacher's students.
func (s *Service) Batches(ctx context.Context, teacherID string) ([]Batch, error) {
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	students, err := s.studentsOf(ctx, t)
	if err != nil {
		return nil, err
	}
	batches := groupBatches(students)
	if batches == nil {
		batches = []Batch{}
	}
	return batches, nil
}

// BatchStudents lists the teacher's students in batchName. A batch with no
// student of the teacher is reported as ErrNotFound.
func (s *Service) BatchStudents(ctx context.Context, teacherID, batchName string) ([]BatchStudent, error) {
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	students, err := s.batch(ctx, batchName)
	if err != nil {
		return nil, err
	}
	var out []BatchStudent
	for _, st := range students {
		if teaches(t, st) {
			out = append(out, batchStudentOf(st))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: batch %q", ErrNotFound, batchName)
	}
	return out, nil
}

// ScheduleSlot is one batch meeting today.
type ScheduleSlot struct {
	BatchName    string       `json:"batchName"`
	Timing       string       `json:"timing"`
	StudentCount int          `json:"studentCount"`
	Mode         records.Mode `json:"mode"`
}

type TeacherProfile struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Contact string         `json:"contact"`
	Subject string         `json:"subject"`
	Status  records.Status `json:"status"`
	Admin   bool           `json:"admin"`
}

type TeacherOverview struct {
	Profile    TeacherProfile `json:"profile"`
	Statistics struct {
		TotalBatches    int `json:"totalBatches"`
		TotalStudents   int `json:"totalStudents"`
		ActiveStudents  int `json:"activeStudents"`
		PendingRequests int `json:"pendingRequests"`
	} `json:"statistics"`
	Batches       []Batch        `json:"batches"`
	TodaySchedule []ScheduleSlot `json:"todaySchedule"`
}

func (s *Service) TeacherDashboard(ctx context.Context, teacherID string) (TeacherOverview, error) {
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return TeacherOverview{}, err
	}
	students, err := s.studentsOf(ctx, t)
	if err != nil {
		return TeacherOverview{}, err
	}
	pending, err := s.pendingRequests(ctx, t)
	if err != nil {
		return TeacherOverview{}, err
	}

	var o TeacherOverview
	o.Profile = TeacherProfile{
		ID:      t.ID,
		Name:    t.Name,
		Email:   t.Email,
		Contact: t.Contact,
		Subject: t.Subject,
		Status:  t.Status,
		Admin:   t.Admin,
	}
	o.Batches = groupBatches(students)
	if o.Batches == nil {
		o.Batches = []Batch{}
	}
	o.Statistics.TotalBatches = len(o.Batches)
	o.Statistics.TotalStudents = len(students)
	for _, st := range students {
		if st.Status == records.StatusActive {
			o.Statistics.ActiveStudents++
		}
	}
	o.Statistics.PendingRequests = len(pending)

	today := s.today().Weekday()
	o.TodaySchedule = []ScheduleSlot{}
	for _, b := range o.Batches {
		days, err := records.ParseClassDays(b.ClassDays)
		if err != nil {
			continue
		}
		for _, wd := range days {
			if wd == today {
				o.TodaySchedule = append(o.TodaySchedule, ScheduleSlot{
					BatchName:    b.BatchName,
					Timing:       Timing{From: b.TimeFrom, Till: b.TimeTill}.String(),
					StudentCount: len(b.Students),
					Mode:         b.Mode,
				})
				break
			}
		}
	}
	return o, nil
}

// NewStudent is the enrolment form filled in by a teacher.
type NewStudent struct {
	Name       string       `json:"name"`
	Contact    string       `json:"contact"`
	Email      string       `json:"email"`
	BatchName  string       `json:"batchName"`
	Password   string       `json:"password"`
	ClassDays  string       `json:"classDays"`
	TimeFrom   string       `json:"timeFrom"`
	TimeTill   string       `json:"timeTill"`
	Subject    string       `json:"subject"`
	Course     string       `json:"course"`
	Mode       records.Mode `json:"mode"`
	StartDate  string       `json:"startDate"`
	EndDate    string       `json:"endDate"`
	PaidAmount float64      `json:"paidAmount"`
}

const minPasswordLength = 4

// courseLength derives the number of days and planned classes between the
// start and end dates.
func courseLength(start, end string, classDays int) (days, classes int, err error) {
	from, err := time.Parse(records.DateLayout, start)
	if err != nil {
		return 0, 0, invalidInput("startDate must be YYYY-MM-DD")
	}
	to, err := time.Parse(records.DateLayout, end)
	if err != nil {
		return 0, 0, invalidInput("endDate must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return 0, 0, invalidInput("endDate is before startDate")
	}
	days = int(math.Ceil(to.Sub(from).Hours() / 24))
	weeks := int(math.Ceil(float64(days) / 7))
	return days, weeks * classDays, nil
}

// AddStudent enrols a student under the calling teacher and returns the new
// student's id. The password is stored hashed.
func (s *Service) AddStudent(ctx context.Context, teacherID string, n NewStudent) (string, error) {
	if len(n.Password) < minPasswordLength {
		return "", invalidInput("password must be at least %d characters", minPasswordLength)
	}
	days, err := records.ParseClassDays(n.ClassDays)
	if err != nil {
		return "", invalidInput("classDays: %v", err)
	}
	total, classes, err := courseLength(n.StartDate, n.EndDate, len(days))
	if err != nil {
		return "", err
	}
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return "", err
	}
	hash, err := s.hasher.HashPassword(n.Password)
	switch {
	case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
		return "", invalidInput("password: %v", err)
	case err != nil:
		return "", fmt.Errorf("hash password: %w", err)
	}

	created, err := s.caches.Students.Write(ctx, func(ctx context.Context) (records.Student, records.Student, error) {
		st, err := s.store.CreateStudent(ctx, records.Student{
			Name:                 strings.TrimSpace(n.Name),
			Contact:              strings.TrimSpace(n.Contact),
			Email:                records.NormalizeEmail(n.Email),
			BatchName:            strings.TrimSpace(n.BatchName),
			PasswordHash:         hash,
			ClassDays:            n.ClassDays,
			TimeFrom:             n.TimeFrom,
			TimeTill:             n.TimeTill,
			Subject:              n.Subject,
			Course:               n.Course,
			Mode:                 n.Mode,
			StartDate:            n.StartDate,
			EndDate:              n.EndDate,
			Days:                 total,
			Classes:              classes,
			Status:               records.StatusActive,
			Teacher:              t.Name,
			PaidAmount:           n.PaidAmount,
			UpcomingDays:         total,
			UpcomingClasses:      classes,
			AttendancePercentage: 100,
		})
		return records.Student{}, st, err
	})
	if err != nil {
		return "", storeError(err)
	}
	s.logger.Info(ctx, "student enrolled", "student_id", created.ID, "teacher_id", t.ID, "batch", created.BatchName)
	return created.ID, nil
}

// StudentUpdate lists the fields a teacher may change. Nil fields are left
// untouched.
type StudentUpdate struct {
	BatchName      *string         `json:"batchName"`
	ClassDays      *string         `json:"classDays"`
	TimeFrom       *string         `json:"timeFrom"`
	TimeTill       *string         `json:"timeTill"`
	Status         *records.Status `json:"status"`
	UpcomingAmount *float64        `json:"upcomingAmount"`
	EndDate        *string         `json:"endDate"`
}

func (u StudentUpdate) apply(st *records.Student) {
	if u.BatchName != nil {
		st.BatchName = strings.TrimSpace(*u.BatchName)
	}
	if u.ClassDays != nil {
		st.ClassDays = *u.ClassDays
	}
	if u.TimeFrom != nil {
		st.TimeFrom = *u.TimeFrom
	}
	if u.TimeTill != nil {
		st.TimeTill = *u.TimeTill
	}
	if u.Status != nil {
		st.Status = *u.Status
	}
	if u.UpcomingAmount != nil {
		st.UpcomingAmount = *u.UpcomingAmount
	}
	if u.EndDate != nil {
		st.EndDate = *u.EndDate
	}
}

// UpdateStudent changes a student's enrolment. Moving a student off Active
// revokes their refresh session; moving them to another slot notifies them.
func (s *Service) UpdateStudent(ctx context.Context, teacherID, studentID string, u StudentUpdate) (Profile, error) {
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return Profile{}, err
	}
	before, after, err := s.updateStudent(ctx, studentID, func(st *records.Student) error {
		if !teaches(t, *st) {
			return schoolauth.ErrInsufficientPermissions
		}
		u.apply(st)
		return nil
	})
	if err != nil {
		return Profile{}, err
	}

	s.afterStudentChange(ctx, before, after)
	return profileOf(after), nil
}

// afterStudentChange runs the side effects of a committed student update.
func (s *Service) afterStudentChange(ctx context.Context, before, after records.Student) {
	if before.Status == records.StatusActive && after.Status != records.StatusActive {
		s.revoke(ctx, after.ID)
	}
	if before.BatchName != after.BatchName || before.TimeFrom != after.TimeFrom ||
		before.TimeTill != after.TimeTill || before.ClassDays != after.ClassDays {
		s.publish(ctx, notify.UserChannel(string(schoolauth.RoleStudent), after.ID), notify.Message{
			Event: notify.EventBatchChange,
			Data: map[string]string{
				"batchName": after.BatchName,
				"classDays": after.ClassDays,
				"timing":    Timing{From: after.TimeFrom, Till: after.TimeTill}.String(),
			},
		})
	}
}

// revoke drops the student's refresh session. A failure is logged only: the
// status change is already committed and refresh re-checks status.
func (s *Service) revoke(ctx context.Context, studentID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.RevokeSessions(ctx, studentID); err != nil {
		s.logger.Error(ctx, "session revocation failed", "student_id", studentID, "err", err)
	}
}

type AttendanceStatus string

const (
	Present AttendanceStatus = "present"
	Absent  AttendanceStatus = "absent"
)

type AttendanceMark struct {
	StudentID string           `json:"studentId"`
	Name      string           `json:"name"`
	Status    AttendanceStatus `json:"status"`
}

// AttendanceSheet is one class session of a batch.
type AttendanceSheet struct {
	BatchName string           `json:"batchName"`
	Date      string           `json:"date"`
	Students  []AttendanceMark `json:"students"`
}

type AttendanceSummary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

func sessionKey(e records.LogEntry) string {
	return e.Extra["batch"] + "|" + e.Extra["date"]
}

// attendanceRate derives the attendance percentage from a student's
// attendance log. A session marked more than once counts with its latest
// mark. Classes holds the planned course length, not sessions held, so it
// plays no part here.
func attendanceRate(logs []records.LogEntry) (pct float64, held int) {
	marks := make(map[string]bool, len(logs))
	for _, e := range logs {
		marks[sessionKey(e)] = e.Extra["status"] == string(Present)
	}
	if len(marks) == 0 {
		return 0, 0
	}
	attended := 0
	for _, present := range marks {
		if present {
			attended++
		}
	}
	return float64(attended) / float64(len(marks)) * 100, len(marks)
}

// remarked reports whether logs hold an earlier mark for the session of
// the entry with id.
func remarked(logs []records.LogEntry, id string) bool {
	var key string
	for _, e := range logs {
		if e.ID == id {
			key = sessionKey(e)
		}
	}
	for _, e := range logs {
		if e.ID != id && sessionKey(e) == key {
			return true
		}
	}
	return false
}

// MarkAttendance logs one session for every listed student and updates
// their attendance percentage. Every student must belong to the batch.
func (s *Service) MarkAttendance(ctx context.Context, teacherID string, sheet AttendanceSheet) (AttendanceSummary, error) {
	if strings.TrimSpace(sheet.BatchName) == "" {
		return AttendanceSummary{}, invalidInput("batchName is required")
	}
	if !records.ValidDate(sheet.Date) {
		return AttendanceSummary{}, invalidInput("date must be YYYY-MM-DD")
	}
	if len(sheet.Students) == 0 {
		return AttendanceSummary{}, invalidInput("students must not be empty")
	}
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return AttendanceSummary{}, err
	}
	members, err := s.batch(ctx, sheet.BatchName)
	if err != nil {
		return AttendanceSummary{}, err
	}
	inBatch := make(map[string]records.Student, len(members))
	for _, m := range members {
		inBatch[m.ID] = m
	}

	var summary AttendanceSummary
	seen := make(map[string]bool, len(sheet.Students))
	for _, mark := range sheet.Students {
		st, ok := inBatch[mark.StudentID]
		switch {
		case !ok:
			return AttendanceSummary{}, invalidInput("student %q is not in batch %q", mark.StudentID, sheet.BatchName)
		case !teaches(t, st):
			return AttendanceSummary{}, schoolauth.ErrInsufficientPermissions
		case seen[mark.StudentID]:
			return AttendanceSummary{}, invalidInput("student %q is listed twice", mark.StudentID)
		case mark.Status != Present && mark.Status != Absent:
			return AttendanceSummary{}, invalidInput("status must be present or absent")
		}
		seen[mark.StudentID] = true
		if mark.Status == Present {
			summary.Present++
		} else {
			summary.Absent++
		}
	}
	summary.Total = len(sheet.Students)

	ids := make([]string, 0, len(sheet.Students))
	for _, mark := range sheet.Students {
		name := mark.Name
		if name == "" {
			name = inBatch[mark.StudentID].Name
		}
		entry, err := s.store.AppendLog(ctx, records.LogEntry{
			Timestamp: s.now(),
			Action:    records.ActionAttendance,
			UserID:    mark.StudentID,
			Details:   fmt.Sprintf("%s - %s in %s", name, strings.ToUpper(string(mark.Status)), sheet.BatchName),
			Extra: map[string]string{
				"batch":  sheet.BatchName,
				"date":   sheet.Date,
				"status": string(mark.Status),
			},
		})
		if err != nil {
			s.invalidateAttendance(ctx, ids...)
			return AttendanceSummary{}, storeError(err)
		}
		ids = append(ids, mark.StudentID)

		logs, err := s.store.Logs(ctx, records.LogFilter{Action: records.ActionAttendance, UserID: mark.StudentID})
		if err != nil {
			s.invalidateAttendance(ctx, ids...)
			return AttendanceSummary{}, storeError(err)
		}
		pct, _ := attendanceRate(logs)
		correction := remarked(logs, entry.ID)
		if _, _, err := s.updateStudent(ctx, mark.StudentID, func(st *records.Student) error {
			st.AttendancePercentage = pct
			if !correction && st.UpcomingClasses > 0 {
				st.UpcomingClasses--
			}
			return nil
		}); err != nil {
			s.invalidateAttendance(ctx, ids...)
			return AttendanceSummary{}, err
		}
	}
	s.invalidateAttendance(ctx, ids...)

	for _, id := range ids {
		s.publish(ctx, notify.UserChannel(string(schoolauth.RoleStudent), id), notify.Message{
			Event: notify.EventAttendance,
			Data:  map[string]string{"batchName": sheet.BatchName, "date": sheet.Date},
		})
	}
	return summary, nil
}

type AttendanceHistory struct {
	BatchName string          `json:"batchName"`
	Logs      []AttendanceLog `json:"logs"`
}

// AttendanceHistory lists the attendance marks of a batch, optionally
// limited to one month. Non-admin teachers only see their own students.
func (s *Service) AttendanceHistory(ctx context.Context, teacherID, batchName string, month, year int) (AttendanceHistory, error) {
	if strings.TrimSpace(batchName) == "" {
		return AttendanceHistory{}, invalidInput("batchName is required")
	}
	if month < 0 || month > 12 || year < 0 {
		return AttendanceHistory{}, invalidInput("month must be 1-12")
	}
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return AttendanceHistory{}, err
	}
	entries, err := s.store.Logs(ctx, records.LogFilter{
		Action:     records.ActionAttendance,
		ExtraKey:   "batch",
		ExtraValue: batchName,
	})
	if err != nil {
		return AttendanceHistory{}, storeError(err)
	}

	mine := make(map[string]bool)
	if !t.Admin {
		students, err := s.studentsOf(ctx, t)
		if err != nil {
			return AttendanceHistory{}, err
		}
		for _, st := range students {
			mine[st.ID] = true
		}
	}

	h := AttendanceHistory{BatchName: batchName, Logs: []AttendanceLog{}}
	for _, e := range entries {
		if !t.Admin && !mine[e.UserID] {
			continue
		}
		if inMonth(e, month, year) {
			h.Logs = append(h.Logs, attendanceLogOf(e))
		}
	}
	return h, nil
}

// RequestView is a change request with the requesting student resolved.
type RequestView struct {
	ID           string                `json:"id"`
	Timestamp    time.Time             `json:"timestamp"`
	StudentID    string                `json:"studentId"`
	StudentName  string                `json:"studentName"`
	RequestType  string                `json:"requestType"`
	Details      string                `json:"details"`
	Reason       string                `json:"reason"`
	CurrentBatch string                `json:"currentBatch"`
	NewBatchName string                `json:"newBatchName"`
	NewTiming    Timing                `json:"newTiming"`
	NewDays      string                `json:"newDays"`
	Status       records.RequestStatus `json:"status"`
}

type pendingRequest struct {
	entry   records.LogEntry
	student records.Student
	found   bool
}

func (s *Service) pendingRequests(ctx context.Context, t records.Teacher) ([]pendingRequest, error) {
	entries, err := s.store.Logs(ctx, records.LogFilter{
		Action: records.ActionChangeRequest,
		Status: records.RequestPending,
	})
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]pendingRequest, 0, len(entries))
	for _, e := range entries {
		st, err := s.student(ctx, e.UserID)
		switch {
		case err == nil:
			if !teaches(t, st) {
				continue
			}
			out = append(out, pendingRequest{entry: e, student: st, found: true})
		case errors.Is(err, ErrNotFound):
			// Requests of deleted students are only shown to admins.
			if t.Admin {
				out = append(out, pendingRequest{entry: e})
			}
		default:
			return nil, err
		}
	}
	return out, nil
}

// Requests lists the pending change requests of the teacher's students,
// oldest first.
func (s *Service) Requests(ctx context.Context, teacherID string) ([]RequestView, error) {
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	pending, err := s.pendingRequests(ctx, t)
	if err != nil {
		return nil, err
	}
	out := make([]RequestView, 0, len(pending))
	for _, p := range pending {
		v := RequestView{
			ID:           p.entry.ID,
			Timestamp:    p.entry.Timestamp,
			StudentID:    p.entry.UserID,
			StudentName:  "Unknown",
			RequestType:  p.entry.Extra["type"],
			Details:      p.entry.Details,
			Reason:       p.entry.Extra["reason"],
			NewBatchName: p.entry.Extra["newBatchName"],
			NewTiming:    Timing{From: p.entry.Extra["newTimeFrom"], Till: p.entry.Extra["newTimeTill"]},
			NewDays:      p.entry.Extra["newDays"],
			Status:       p.entry.Status,
		}
		if p.found {
			v.StudentName = p.student.Name
			v.CurrentBatch = p.student.BatchName
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) changeRequest(ctx context.Context, requestID string) (records.LogEntry, error) {
	entries, err := s.store.Logs(ctx, records.LogFilter{Action: records.ActionChangeRequest})
	if err != nil {
		return records.LogEntry{}, storeError(err)
	}
	for _, e := range entries {
		if e.ID == requestID {
			return e, nil
		}
	}
	return records.LogEntry{}, fmt.Errorf("%w: request %q", ErrNotFound, requestID)
}

// resolveRequest moves a pending request to status. The status check is
// repeated inside the store update, so of two concurrent resolutions one
// fails with ErrRequestResolved.
func (s *Service) resolveRequest(ctx context.Context, t records.Teacher, requestID string, status records.RequestStatus, note string) (records.LogEntry, error) {
	current, err := s.changeRequest(ctx, requestID)
	if err != nil {
		return records.LogEntry{}, err
	}
	if current.Status != records.RequestPending {
		return records.LogEntry{}, ErrRequestResolved
	}
	st, err := s.student(ctx, current.UserID)
	if err != nil {
		return records.LogEntry{}, err
	}
	if !teaches(t, st) {
		return records.LogEntry{}, schoolauth.ErrInsufficientPermissions
	}

	entry, err := s.store.UpdateLog(ctx, requestID, func(e *records.LogEntry) error {
		if e.Status != records.RequestPending {
			return ErrRequestResolved
		}
		e.Status = status
		if e.Extra == nil {
			e.Extra = map[string]string{}
		}
		e.Extra["resolvedBy"] = t.Email
		if note != "" {
			e.Extra["note"] = note
		}
		return nil
	})
	if err != nil {
		return records.LogEntry{}, storeError(err)
	}
	return entry, nil
}

func (s *Service) reopenRequest(ctx context.Context, requestID string) {
	_, err := s.store.UpdateLog(ctx, requestID, func(e *records.LogEntry) error {
		e.Status = records.RequestPending
		delete(e.Extra, "resolvedBy")
		delete(e.Extra, "note")
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "could not reopen change request", "request_id", requestID, "err", err)
	}
}

// ApproveRequest moves the student to the requested batch and slot.
func (s *Service) ApproveRequest(ctx context.Context, teacherID, requestID string) error {
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return err
	}
	entry, err := s.resolveRequest(ctx, t, requestID, records.RequestApproved, "")
	if err != nil {
		return err
	}

	before, after, err := s.updateStudent(ctx, entry.UserID, func(st *records.Student) error {
		if v := entry.Extra["newBatchName"]; v != "" {
			st.BatchName = v
		}
		if v := entry.Extra["newTimeFrom"]; v != "" {
			st.TimeFrom = v
		}
		if v := entry.Extra["newTimeTill"]; v != "" {
			st.TimeTill = v
		}
		if v := entry.Extra["newDays"]; v != "" {
			st.ClassDays = v
		}
		return nil
	})
	if err != nil {
		s.reopenRequest(ctx, requestID)
		return err
	}

	s.auditLog(ctx, records.ActionRequestApproved, after.ID,
		"Batch change approved by "+t.Email, map[string]string{"requestId": requestID})
	s.afterStudentChange(ctx, before, after)
	s.publishRequestStatus(ctx, after.ID, requestID, records.RequestApproved)
	return nil
}

// RejectRequest closes a pending request without changing the student.
func (s *Service) RejectRequest(ctx context.Context, teacherID, requestID, reason string) error {
	t, err := s.teacher(ctx, teacherID)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	entry, err := s.resolveRequest(ctx, t, requestID, records.RequestRejected, reason)
	if err != nil {
		return err
	}

	details := "Batch change rejected by " + t.Email
	if reason != "" {
		details += ": " + reason
	}
	s.auditLog(ctx, records.ActionRequestRejected, entry.UserID, details, map[string]string{"requestId": requestID})
	s.publishRequestStatus(ctx, entry.UserID, requestID, records.RequestRejected)
	return nil
}

func (s *Service) auditLog(ctx context.Context, action records.LogAction, userID, details string, extra map[string]string) {
	_, err := s.store.AppendLog(ctx, records.LogEntry{
		Timestamp: s.now(),
		Action:    action,
		UserID:    userID,
		Details:   details,
		Extra:     extra,
	})
	if err != nil {
		s.logger.Warn(ctx, "activity log append failed", "action", action, "user_id", userID, "err", err)
	}
}

func (s *Service) publishRequestStatus(ctx context.Context, studentID, requestID string, status records.RequestStatus) {
	s.publish(ctx, notify.UserChannel(string(schoolauth.RoleStudent), studentID), notify.Message{
		Event: notify.EventRequestStatus,
		Data:  map[string]string{"requestId": requestID, "status": string(status)},
	})
}

type BatchDetail struct {
	Name         string       `json:"name"`
	StudentCount int          `json:"studentCount"`
	Timing       string       `json:"timing"`
	Days         string       `json:"days"`
	Mode         records.Mode `json:"mode"`
}

type Statistics struct {
	TotalBatches      int           `json:"totalBatches"`
	TotalStudents     int           `json:"totalStudents"`
	ActiveStudents    int           `json:"activeStudents"`
	OnHoldStudents    int           `json:"onHoldStudents"`
	AverageAttendance float64       `json:"averageAttendance"`
	BatchDetails      []BatchDetail `json:"batchDetails"`
}

// Statistics summarises the teacher's batches. AverageAttendance is the
// mean of the per-batch averages, rounded to two decimals.
func (s *Service) Statistics(ctx context.Context, teacherID string) (Statistics, error) {
	batches, err := s.Batches(ctx, teacherID)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{TotalBatches: len(batches), BatchDetails: []BatchDetail{}}
	var sum float64
	for _, b := range batches {
		var batchSum float64
		for _, st := range b.Students {
			stats.TotalStudents++
			switch st.Status {
			case records.StatusActive:
				stats.ActiveStudents++
			case records.StatusHold:
				stats.OnHoldStudents++
			}
			batchSum += st.AttendancePercentage
		}
		sum += batchSum / float64(len(b.Students))
		stats.BatchDetails = append(stats.BatchDetails, BatchDetail{
			Name:         b.BatchName,
			StudentCount: len(b.Students),
			Timing:       Timing{From: b.TimeFrom, Till: b.TimeTill}.String(),
			Days:         b.ClassDays,
			Mode:         b.Mode,
		})
	}
	if len(batches) > 0 {
		avg := sum / float64(len(batches))
		stats.AverageAttendance = math.Round(avg*100) / 100
	}
	return stats, nil
}
