// Package recordstore is the boundary to the external, loosely typed record
// service that owns provider and patient rows.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrInvalidFilter is returned when the backend rejects a filter, typically
	// because it references a field the table does not have.
	ErrInvalidFilter = errors.New("invalid filter")
)

var recordIDPattern = regexp.MustCompile(`^rec[A-Za-z0-9]{14}$`)

// IsRecordID reports whether s has the shape of a native record handle.
func IsRecordID(s string) bool {
	return recordIDPattern.MatchString(s)
}

// NewRecordID mints a handle in the native format for backends that do not issue their own.
func NewRecordID() string {
	return "rec" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14]
}

type Record struct {
	ID          string                 `json:"id"`
	CreatedTime time.Time              `json:"createdTime"`
	Fields      map[string]interface{} `json:"fields"`
}

type Op int

const (
	// OpEquals compares the field's text form with Value.
	OpEquals Op = iota
	// OpNumberEquals compares a numeric field with Value parsed as a number.
	OpNumberEquals
	// OpEqualsFold compares lower-cased text.
	OpEqualsFold
	// OpDigitsEqual compares the field with every non-digit removed.
	OpDigitsEqual
)

type Condition struct {
	Field string
	Op    Op
	Value string
}

// Filter matches a record when any of its conditions holds.
type Filter struct {
	Any []Condition
}

func Where(field string, op Op, value string) *Filter {
	return &Filter{Any: []Condition{{Field: field, Op: op, Value: value}}}
}

func (f *Filter) Or(field string, op Op, value string) *Filter {
	f.Any = append(f.Any, Condition{Field: field, Op: op, Value: value})
	return f
}

func (f *Filter) Empty() bool {
	return f == nil || len(f.Any) == 0
}

type SelectOptions struct {
	Filter     *Filter
	MaxRecords int
	View       string
}

// Store is implemented by every record backend. Select follows pagination to the end
// (or MaxRecords); Update merges the given fields into the existing row.
type Store interface {
	Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error)
	Find(ctx context.Context, table, id string) (Record, error)
	Create(ctx context.Context, table string, fields map[string]interface{}) (Record, error)
	Update(ctx context.Context, table, id string, fields map[string]interface{}) (Record, error)
}

// APIError is a non-2xx answer from the record service.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("record store: %d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("record store: %d %s", e.StatusCode, e.Type)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInvalidFilter:
		return e.StatusCode == 422
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}
