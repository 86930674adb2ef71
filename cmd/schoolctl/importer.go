package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/maxmusicschool/schoolauth/password"
	"github.com/maxmusicschool/schoolauth/records"
	"golang.org/x/sync/errgroup"
)

// rejection is one quarantined input row.
type rejection struct {
	line   int
	row    []string
	reason string
}

type importReport struct {
	imported int
	rejected []rejection
}

// rowKind describes one importable record kind.
type rowKind[T any] struct {
	columns []string
	decode  func(line int, row []string) (T, error)
	// secret points at the password field of a decoded record.
	secret func(*T) *string
	create  func(ctx context.Context, v T) error
}

type importer struct {
	// hash replaces plaintext passwords. Nil keeps them as they are.
	hash    func(string) (string, error)
	workers int
}

type pendingRow[T any] struct {
	line  int
	row   []string
	value T
}

func runImport[T any](ctx context.Context, im importer, kind rowKind[T], in io.Reader) (importReport, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return importReport{}, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header, kind.columns); err != nil {
		return importReport{}, err
	}

	var (
		report  importReport
		pending []pendingRow[T]
	)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.rejected = append(report.rejected, rejection{line: parseErr.StartLine, row: row, reason: parseErr.Err.Error()})
				continue
			}
			return report, err
		}
		line, _ := r.FieldPos(0)
		v, err := kind.decode(line, row)
		if err != nil {
			report.rejected = append(report.rejected, rejection{line: line, row: row, reason: err.Error()})
			continue
		}
		pending = append(pending, pendingRow[T]{line: line, row: row, value: v})
	}

	if im.hash != nil {
		if err := hashSecrets(ctx, im, kind, pending); err != nil {
			return report, err
		}
	}

	for _, p := range pending {
		if err := kind.create(ctx, p.value); err != nil {
			if errors.Is(err, records.ErrUnavailable) {
				return report, err
			}
			report.rejected = append(report.rejected, rejection{line: p.line, row: p.row, reason: err.Error()})
			continue
		}
		report.imported++
	}
	return report, nil
}

// hashSecrets hashes every plaintext password in place. Hashing dominates
// import time, so rows are hashed concurrently.
func hashSecrets[T any](ctx context.Context, im importer, kind rowKind[T], rows []pendingRow[T]) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(im.workers, 1))
	for i := range rows {
		secret := kind.secret(&rows[i].value)
		if password.Detect(*secret) != password.SchemePlaintext {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := im.hash(*secret)
			if err != nil {
				return fmt.Errorf("line %d: hash password: %w", rows[i].line, err)
			}
			*secret = h
			return nil
		})
	}
	return g.Wait()
}

func checkHeader(header, columns []string) error {
	if len(header) != len(columns) {
		return fmt.Errorf("header has %d columns, want %d: %s", len(header), len(columns), strings.Join(columns, ","))
	}
	for i, c := range columns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), c) {
			return fmt.Errorf("header column %d is %q, want %q", i+1, header[i], c)
		}
	}
	return nil
}

// writeQuarantine writes rejected rows with their line and reason appended.
func writeQuarantine(w io.Writer, columns []string, rejected []rejection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, columns...), "line", "reason")); err != nil {
		return err
	}
	for _, r := range rejected {
		row := append(append([]string{}, r.row...), strconv.Itoa(r.line), r.reason)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func studentRows(store records.Store) rowKind[records.Student] {
	return rowKind[records.Student]{
		columns: records.StudentColumns,
		decode:  records.DecodeStudentRow,
		secret:  func(s *records.Student) *string { return &s.PasswordHash },
		create: func(ctx context.Context, s records.Student) error {
			_, err := store.CreateStudent(ctx, s)
			return err
		},
	}
}

func teacherRows(store records.Store) rowKind[records.Teacher] {
	return rowKind[records.Teacher]{
		columns: records.TeacherColumns,
		decode:  records.DecodeTeacherRow,
		secret:  func(t *records.Teacher) *string { return &t.PasswordHash },
		create: func(ctx context.Context, t records.Teacher) error {
			_, err := store.CreateTeacher(ctx, t)
			return err
		},
	}
}
