package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps tables in process. It backs local development and tests,
// and mirrors the Airtable semantics the resolver depends on: a filter naming a
// field outside a declared schema fails with a 422 APIError.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[string]*memoryTable
	calls   map[string]int
	failing map[string]error
}

type memoryTable struct {
	schema  map[string]struct{}
	order   []string
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:  make(map[string]*memoryTable),
		calls:   make(map[string]int),
		failing: make(map[string]error),
	}
}

// DefineTable declares the fields a table has. Tables without a schema accept any field.
func (s *MemoryStore) DefineTable(table string, fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	t.schema = make(map[string]struct{}, len(fields))
	for _, f := range fields {
		t.schema[f] = struct{}{}
	}
}

// FailNext makes the next call of the named operation ("select", "find", "create", "update") return err.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[op] = err
}

// Seed inserts a record with a fixed handle, returning the stored copy.
func (s *MemoryStore) Seed(table, id string, fields map[string]interface{}) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	rec := Record{ID: id, CreatedTime: time.Now().UTC(), Fields: cloneFields(fields)}
	if _, ok := t.records[id]; !ok {
		t.order = append(t.order, id)
	}
	t.records[id] = rec
	return rec
}

func (s *MemoryStore) Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("select"); err != nil {
		return nil, err
	}

	t := s.table(table)
	if !opts.Filter.Empty() {
		for _, cond := range opts.Filter.Any {
			if !t.hasField(cond.Field) {
				return nil, &APIError{StatusCode: 422, Type: "INVALID_FILTER_BY_FORMULA", Message: "Unknown field names: " + cond.Field}
			}
			if cond.Op == OpNumberEquals {
				if _, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64); err != nil {
					return nil, &APIError{StatusCode: 422, Type: "INVALID_FILTER_BY_FORMULA", Message: "not a number: " + cond.Value}
				}
			}
		}
	}

	var out []Record
	for _, id := range t.order {
		rec := t.records[id]
		if !opts.Filter.Empty() && !matches(rec, opts.Filter) {
			continue
		}
		out = append(out, Record{ID: rec.ID, CreatedTime: rec.CreatedTime, Fields: cloneFields(rec.Fields)})
		if opts.MaxRecords > 0 && len(out) >= opts.MaxRecords {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Find(ctx context.Context, table, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("find"); err != nil {
		return Record{}, err
	}
	rec, ok := s.table(table).records[id]
	if !ok {
		return Record{}, &APIError{StatusCode: 404, Type: "NOT_FOUND"}
	}
	return Record{ID: rec.ID, CreatedTime: rec.CreatedTime, Fields: cloneFields(rec.Fields)}, nil
}

func (s *MemoryStore) Create(ctx context.Context, table string, fields map[string]interface{}) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("create"); err != nil {
		return Record{}, err
	}
	t := s.table(table)
	if err := t.checkFields(fields); err != nil {
		return Record{}, err
	}
	rec := Record{ID: NewRecordID(), CreatedTime: time.Now().UTC(), Fields: cloneFields(fields)}
	t.order = append(t.order, rec.ID)
	t.records[rec.ID] = rec
	return Record{ID: rec.ID, CreatedTime: rec.CreatedTime, Fields: cloneFields(rec.Fields)}, nil
}

func (s *MemoryStore) Update(ctx context.Context, table, id string, fields map[string]interface{}) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("update"); err != nil {
		return Record{}, err
	}
	t := s.table(table)
	rec, ok := t.records[id]
	if !ok {
		return Record{}, &APIError{StatusCode: 404, Type: "NOT_FOUND"}
	}
	if err := t.checkFields(fields); err != nil {
		return Record{}, err
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	t.records[id] = rec
	return Record{ID: rec.ID, CreatedTime: rec.CreatedTime, Fields: cloneFields(rec.Fields)}, nil
}

func (s *MemoryStore) enter(op string) error {
	s.calls[op]++
	if err, ok := s.failing[op]; ok {
		delete(s.failing, op)
		return err
	}
	return nil
}

func (s *MemoryStore) table(name string) *memoryTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memoryTable{records: make(map[string]Record)}
		s.tables[name] = t
	}
	return t
}

func (t *memoryTable) hasField(field string) bool {
	if t.schema == nil {
		return true
	}
	_, ok := t.schema[field]
	return ok
}

func (t *memoryTable) checkFields(fields map[string]interface{}) error {
	for k := range fields {
		if !t.hasField(k) {
			return &APIError{StatusCode: 422, Type: "UNKNOWN_FIELD_NAME", Message: "Unknown field name: " + k}
		}
	}
	return nil
}

func matches(rec Record, f *Filter) bool {
	for _, cond := range f.Any {
		if conditionMatches(rec.Fields[cond.Field], cond) {
			return true
		}
	}
	return false
}

func conditionMatches(value interface{}, cond Condition) bool {
	if value == nil {
		return false
	}
	switch cond.Op {
	case OpEquals:
		return textOf(value) == cond.Value
	case OpNumberEquals:
		n, ok := numberOf(value)
		if !ok {
			return false
		}
		want, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
		return err == nil && n == want
	case OpEqualsFold:
		return strings.ToLower(textOf(value)) == strings.ToLower(cond.Value)
	case OpDigitsEqual:
		return digitsOnly(textOf(value)) == digitsOnly(cond.Value)
	}
	return false
}

func textOf(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func numberOf(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

func cloneFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// CallCount reports how many times an operation was invoked.
func (s *MemoryStore) CallCount(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}
