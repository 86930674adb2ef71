package records

import (
	"errors"
	"strconv"
	"strings"
)

// StudentColumns is the column order expected by DecodeStudentRow.
var StudentColumns = []string{
	"id", "name", "contact", "email", "batchName", "password", "classDays",
	"timeFrom", "timeTill", "subject", "course", "mode", "startDate", "endDate",
	"days", "classes", "status", "teacher", "paidAmount", "upcomingAmount",
	"upcomingDays", "upcomingClasses", "rep", "attendancePercentage",
}

// TeacherColumns is the column order expected by DecodeTeacherRow.
var TeacherColumns = []string{
	"id", "name", "contact", "email", "password", "subject", "status", "admin",
}

type rowReader struct {
	line    int
	row     []string
	columns []string
	err     *RowError
}

func (r *rowReader) fail(col int, reason string) {
	if r.err == nil {
		r.err = &RowError{Line: r.line, Column: col, Field: r.columns[col], Reason: reason}
	}
}

func (r *rowReader) text(col int, required bool) string {
	v := strings.TrimSpace(r.row[col])
	if required && v == "" {
		r.fail(col, "is required")
	}
	return v
}

func (r *rowReader) integer(col int) int {
	v := strings.TrimSpace(r.row[col])
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		r.fail(col, "is not a non-negative integer")
	}
	return n
}

func (r *rowReader) number(col int) float64 {
	v := strings.TrimSpace(r.row[col])
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		r.fail(col, "is not a non-negative number")
	}
	return f
}

// DecodeStudentRow decodes one import row laid out as StudentColumns. The
// password column carries a password hash or, for legacy data, the
// plaintext; the caller decides which is acceptable. line is reported in
// the returned *RowError.
func DecodeStudentRow(line int, row []string) (Student, error) {
	if len(row) != len(StudentColumns) {
		return Student{}, &RowError{Line: line, Column: -1, Reason: "expected " + strconv.Itoa(len(StudentColumns)) + " columns, got " + strconv.Itoa(len(row))}
	}
	r := &rowReader{line: line, row: row, columns: StudentColumns}
	s := Student{
		ID:                   r.text(0, true),
		Name:                 r.text(1, true),
		Contact:              r.text(2, false),
		Email:                NormalizeEmail(r.text(3, true)),
		BatchName:            r.text(4, true),
		PasswordHash:         r.text(5, true),
		ClassDays:            r.text(6, true),
		TimeFrom:             r.text(7, true),
		TimeTill:             r.text(8, true),
		Subject:              r.text(9, false),
		Course:               r.text(10, false),
		Mode:                 Mode(r.text(11, true)),
		StartDate:            r.text(12, false),
		EndDate:              r.text(13, false),
		Days:                 r.integer(14),
		Classes:              r.integer(15),
		Status:               Status(r.text(16, true)),
		Teacher:              r.text(17, false),
		PaidAmount:           r.number(18),
		UpcomingAmount:       r.number(19),
		UpcomingDays:         r.integer(20),
		UpcomingClasses:      r.integer(21),
		Rep:                  r.text(22, false),
		AttendancePercentage: r.number(23),
	}
	if r.err != nil {
		return Student{}, r.err
	}
	if err := s.Validate(); err != nil {
		return Student{}, fieldError(line, StudentColumns, err)
	}
	return s, nil
}

// DecodeTeacherRow decodes one import row laid out as TeacherColumns. The
// admin column accepts true/false/yes/no/1/0 and may be empty.
func DecodeTeacherRow(line int, row []string) (Teacher, error) {
	if len(row) != len(TeacherColumns) {
		return Teacher{}, &RowError{Line: line, Column: -1, Reason: "expected " + strconv.Itoa(len(TeacherColumns)) + " columns, got " + strconv.Itoa(len(row))}
	}
	r := &rowReader{line: line, row: row, columns: TeacherColumns}
	t := Teacher{
		ID:           r.text(0, true),
		Name:         r.text(1, true),
		Contact:      r.text(2, false),
		Email:        NormalizeEmail(r.text(3, true)),
		PasswordHash: r.text(4, true),
		Subject:      r.text(5, false),
		Status:       Status(r.text(6, true)),
	}
	switch strings.ToLower(strings.TrimSpace(row[7])) {
	case "", "false", "no", "0":
	case "true", "yes", "1":
		t.Admin = true
	default:
		r.fail(7, "is not a boolean")
	}
	if r.err != nil {
		return Teacher{}, r.err
	}
	if err := t.Validate(); err != nil {
		return Teacher{}, fieldError(line, TeacherColumns, err)
	}
	return t, nil
}

// fieldError turns a Validate error into a RowError pointing at the column
// named in the message when there is one.
func fieldError(line int, columns []string, err error) *RowError {
	reason := strings.TrimPrefix(err.Error(), ErrInvalidRecord.Error()+": ")
	if !errors.Is(err, ErrInvalidRecord) {
		return &RowError{Line: line, Column: -1, Reason: err.Error()}
	}
	field, _, _ := strings.Cut(reason, " ")
	for i, c := range columns {
		if c == field {
			return &RowError{Line: line, Column: i, Field: c, Reason: reason}
		}
	}
	return &RowError{Line: line, Column: -1, Reason: reason}
}
