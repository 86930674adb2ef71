package httpapi

import (
	"net/http"

	"github.com/maxmusicschool/schoolauth/school"
)

func (a *api) studentDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.school.Dashboard(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) studentProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.school.Profile(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) updateStudentProfile(w http.ResponseWriter, r *http.Request) {
	var u school.ProfileUpdate
	if err := decodeJSON(w, r, &u, false); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.school.UpdateProfile(r.Context(), caller(r), u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "profile": p})
}

func (a *api) studentSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := a.school.Schedule(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) studentAttendance(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthQuery(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	report, err := a.school.Attendance(r.Context(), caller(r), month, year)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) requestChange(w http.ResponseWriter, r *http.Request) {
	var req school.ChangeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := a.school.RequestChange(r.Context(), caller(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":   "Change request submitted successfully",
		"requestId": id,
	})
}

func (a *api) paymentInfo(w http.ResponseWriter, r *http.Request) {
	p, err := a.school.PaymentInfo(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) rateClass(w http.ResponseWriter, r *http.Request) {
	var req school.Rating
	if err := decodeJSON(w, r, &req, false); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.school.RateClass(r.Context(), caller(r), req); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Rating submitted successfully"})
}

func (a *api) upcomingClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := a.school.UpcomingClasses(r.Context(), caller(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"classes": classes})
}
