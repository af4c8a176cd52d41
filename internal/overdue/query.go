package overdue

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/store"
	"github.com/safar/trade-credit/internal/validation"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([tT ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?)?$`)

// Query selects businesses with overdue orders due in [DueAfter, DueBefore).
type Query struct {
	DueBefore *time.Time `json:"dueBefore"`
	DueAfter  *time.Time `json:"dueAfter"`
	Page      int        `json:"page" validate:"gte=1"`
	PageSize  int        `json:"pageSize" validate:"gte=1,lte=100"`
}

// ParseDate accepts a calendar date or a timestamp with optional fraction and
// zone. Dates and zoneless timestamps are read as UTC. An empty string is no
// bound.
func ParseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if !isoDate.MatchString(value) {
		return nil, database.NewValidationError(field, "must be a YYYY-MM-DD date or RFC 3339 timestamp")
	}

	if len(value) > 10 {
		value = value[:10] + "T" + value[11:]
	}

	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, database.NewValidationError(field, "is not a valid date")
}

// ParseQuery builds a Query from raw query-string values, applying defaults
// for missing pagination. The result is validated.
func ParseQuery(dueBefore, dueAfter, page, pageSize string) (Query, error) {
	q := Query{Page: DefaultPage, PageSize: DefaultPageSize}

	var err error
	if q.DueBefore, err = ParseDate("dueBefore", strings.TrimSpace(dueBefore)); err != nil {
		return Query{}, err
	}
	if q.DueAfter, err = ParseDate("dueAfter", strings.TrimSpace(dueAfter)); err != nil {
		return Query{}, err
	}
	if q.Page, err = parseInt("page", page, DefaultPage); err != nil {
		return Query{}, err
	}
	if q.PageSize, err = parseInt("pageSize", pageSize, DefaultPageSize); err != nil {
		return Query{}, err
	}

	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func (q Query) Validate() error {
	if err := validation.Struct(q); err != nil {
		return err
	}
	if err := store.CheckPage(q.Page, q.PageSize); err != nil {
		return err
	}
	if q.DueBefore != nil && q.DueAfter != nil && q.DueAfter.After(*q.DueBefore) {
		return database.NewValidationError("dueAfter", "must not be later than dueBefore")
	}
	return nil
}

func (q Query) filter(asOf time.Time) store.OverdueFilter {
	return store.OverdueFilter{DueBefore: q.DueBefore, DueAfter: q.DueAfter, AsOf: asOf}
}

func parseInt(field, value string, def int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, database.NewValidationError(field, "must be an integer")
	}
	return n, nil
}
