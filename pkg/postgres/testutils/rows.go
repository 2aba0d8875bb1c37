package testutils

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Row is a pgx.Row returning fixed values or an error.
type Row struct {
	Values []any
	Err    error
}

func (r Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return assign(r.Values, dest)
}

// NoRow is a row that reports pgx.ErrNoRows.
func NoRow() Row {
	return Row{Err: pgx.ErrNoRows}
}

// Rows is an in-memory pgx.Rows.
type Rows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

var _ pgx.Rows = (*Rows)(nil)

// NewRows returns rows yielding each values slice in order.
func NewRows(values ...[]any) *Rows {
	return &Rows{data: values}
}

// WithErr makes Err report err once iteration finishes.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Err() error { return r.err }

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.data)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.data) {
		r.closed = true
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	return assign(r.data[r.idx-1], dest)
}

func (r *Rows) Values() ([]any, error) {
	return r.data[r.idx-1], nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

// assign copies src values into pointer destinations. A nil value zeroes the destination, and a
// value is wrapped when the destination is a pointer to a pointer.
func assign(src []any, dest []any) error {
	if len(src) != len(dest) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(src))
	}
	for i := range dest {
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		target := dv.Elem()
		if src[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		sv := reflect.ValueOf(src[i])
		switch {
		case sv.Type().AssignableTo(target.Type()):
			target.Set(sv)
		case target.Kind() == reflect.Pointer && sv.Type().AssignableTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(sv)
			target.Set(p)
		default:
			return fmt.Errorf("scan: cannot assign %s to %s at %d", sv.Type(), target.Type(), i)
		}
	}
	return nil
}
