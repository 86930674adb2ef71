package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/maxmusicschool/schoolauth/school"
)

func (a *api) teacherDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.school.TeacherDashboard(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) batches(w http.ResponseWriter, r *http.Request) {
	b, err := a.school.Batches(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": b})
}

func (a *api) batchStudents(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["batchName"]
	students, err := a.school.BatchStudents(r.Context(), caller(r), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batchName": name, "students": students})
}

func (a *api) addStudent(w http.ResponseWriter, r *http.Request) {
	var n school.NewStudent
	if err := decodeJSON(w, r, &n, false); err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := a.school.AddStudent(r.Context(), caller(r), n)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Student added successfully", "studentId": id})
}

func (a *api) updateStudent(w http.ResponseWriter, r *http.Request) {
	var u school.StudentUpdate
	if err := decodeJSON(w, r, &u, false); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.school.UpdateStudent(r.Context(), caller(r), mux.Vars(r)["id"], u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Student updated successfully", "student": p})
}

func (a *api) markAttendance(w http.ResponseWriter, r *http.Request) {
	var sheet school.AttendanceSheet
	if err := decodeJSON(w, r, &sheet, false); err != nil {
		a.fail(w, r, err)
		return
	}
	summary, err := a.school.MarkAttendance(r.Context(), caller(r), sheet)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Attendance marked successfully", "summary": summary})
}

func (a *api) attendanceHistory(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthQuery(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := a.school.AttendanceHistory(r.Context(), caller(r), r.URL.Query().Get("batchName"), month, year)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *api) requests(w http.ResponseWriter, r *http.Request) {
	views, err := a.school.Requests(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (a *api) approveRequest(w http.ResponseWriter, r *http.Request) {
	if err := a.school.ApproveRequest(r.Context(), caller(r), mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request approved successfully"})
}

type rejectBody struct {
	Reason string `json:"reason"`
}

func (a *api) rejectRequest(w http.ResponseWriter, r *http.Request) {
	var req rejectBody
	if err := decodeJSON(w, r, &req, true); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.school.RejectRequest(r.Context(), caller(r), mux.Vars(r)["id"], strings.TrimSpace(req.Reason)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request rejected"})
}

func (a *api) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.school.Statistics(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
