package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PostgresStore keeps rows of every logical table in one jsonb-backed table, so
// the loosely typed field mapping of the hosted record service carries over as is.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type RecordModel struct {
	ID          string            `gorm:"primaryKey;size:17"`
	RecordTable string            `gorm:"column:record_table;index;not null"`
	Fields      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RecordModel) TableName() string {
	return "records"
}

func (s *PostgresStore) AutoMigrate() error {
	return s.db.AutoMigrate(&RecordModel{})
}

func (s *PostgresStore) Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error) {
	query := s.db.WithContext(ctx).Where("record_table = ?", table)
	if !opts.Filter.Empty() {
		clause, args, err := sqlFilter(opts.Filter)
		if err != nil {
			return nil, err
		}
		query = query.Where(clause, args...)
	}
	if opts.MaxRecords > 0 {
		query = query.Limit(opts.MaxRecords)
	}

	var rows []RecordModel
	if err := query.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapRecordModel(row))
	}
	return records, nil
}

func (s *PostgresStore) Find(ctx context.Context, table, id string) (Record, error) {
	var row RecordModel
	err := s.db.WithContext(ctx).Where("id = ? AND record_table = ?", id, table).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return mapRecordModel(row), nil
}

func (s *PostgresStore) Create(ctx context.Context, table string, fields map[string]interface{}) (Record, error) {
	now := time.Now().UTC()
	row := RecordModel{
		ID:          NewRecordID(),
		RecordTable: table,
		Fields:      datatypes.JSONMap(cloneFields(fields)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Record{}, err
	}
	return mapRecordModel(row), nil
}

func (s *PostgresStore) Update(ctx context.Context, table, id string, fields map[string]interface{}) (Record, error) {
	var out Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row RecordModel
		err := tx.Where("id = ? AND record_table = ?", id, table).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		merged := cloneFields(row.Fields)
		for k, v := range fields {
			merged[k] = v
		}
		row.Fields = datatypes.JSONMap(merged)
		row.UpdatedAt = time.Now().UTC()

		if err := tx.Model(&RecordModel{}).Where("id = ?", id).Updates(map[string]interface{}{
			"fields":     row.Fields,
			"updated_at": row.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		out = mapRecordModel(row)
		return nil
	})
	return out, err
}

func mapRecordModel(row RecordModel) Record {
	return Record{
		ID:          row.ID,
		CreatedTime: row.CreatedAt,
		Fields:      cloneFields(row.Fields),
	}
}

// sqlFilter renders a filter against the jsonb fields column.
func sqlFilter(f *Filter) (string, []interface{}, error) {
	parts := make([]string, 0, len(f.Any))
	var args []interface{}
	for _, cond := range f.Any {
		switch cond.Op {
		case OpEquals:
			parts = append(parts, "fields->>? = ?")
			args = append(args, cond.Field, cond.Value)
		case OpNumberEquals:
			n, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %q is not numeric", ErrInvalidFilter, cond.Value)
			}
			parts = append(parts, "(CASE WHEN jsonb_typeof(fields->?) = 'number' THEN (fields->>?)::numeric = ? ELSE false END)")
			args = append(args, cond.Field, cond.Field, n)
		case OpEqualsFold:
			parts = append(parts, "lower(fields->>?) = ?")
			args = append(args, cond.Field, strings.ToLower(cond.Value))
		case OpDigitsEqual:
			parts = append(parts, "regexp_replace(coalesce(fields->>?, ''), '[^0-9]', '', 'g') = ?")
			args = append(args, cond.Field, digitsOnly(cond.Value))
		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %d", ErrInvalidFilter, cond.Op)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, nil
}
