package checkins

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/models"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 100
)

// Cursor addresses a page of an offset-paginated listing. Its string form is
// "limit:offset:is_prev".
type Cursor struct {
	Limit  int
	Offset int
	IsPrev bool
}

func (c Cursor) String() string {
	prev := 0
	if c.IsPrev {
		prev = 1
	}
	return fmt.Sprintf("%d:%d:%d", c.Limit, c.Offset, prev)
}

func ParseCursor(value string) (Cursor, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return Cursor{}, fmt.Errorf("malformed cursor %q", value)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Cursor{}, fmt.Errorf("malformed cursor %q", value)
		}
		nums[i] = n
	}

	return Cursor{Limit: nums[0], Offset: nums[1], IsPrev: nums[2] == 1}, nil
}

// Page is one slice of a monitor's check-in history, newest first.
type Page struct {
	CheckIns []models.MonitorCheckIn
	Next     *Cursor
	Prev     *Cursor
}

// QueryService lists recorded check-ins.
type QueryService struct {
	store       Store
	defaultSize int
	maxSize     int
}

func NewQueryService(store Store, defaultSize, maxSize int) *QueryService {
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if defaultSize <= 0 || defaultSize > maxSize {
		defaultSize = min(DefaultPageSize, maxSize)
	}

	return &QueryService{store: store, defaultSize: defaultSize, maxSize: maxSize}
}

// List returns a page of monitor's check-ins ordered by date_added
// descending. cursor may be empty for the first page and limit may be zero
// for the default page size. Project key credentials are refused.
func (q *QueryService) List(ctx context.Context, principal auth.Principal, monitor *models.Monitor, cursor string, limit int) (*Page, error) {
	if !principal.CanRead() {
		return nil, ErrUnauthorized
	}

	offset := 0
	if cursor != "" {
		c, err := ParseCursor(cursor)
		if err != nil {
			verr := &ValidationError{}
			verr.add("cursor", CodeInvalidType, err.Error())
			return nil, verr
		}
		offset = c.Offset
		if limit <= 0 {
			limit = c.Limit
		}
	}

	if limit <= 0 {
		limit = q.defaultSize
	}
	limit = min(limit, q.maxSize)

	rows, err := q.store.ListCheckIns(ctx, monitor.ID, offset, limit+1)
	if err != nil {
		return nil, persistenceError("list check-ins", err)
	}

	page := &Page{CheckIns: rows}

	if len(rows) > limit {
		page.CheckIns = rows[:limit]
		page.Next = &Cursor{Limit: limit, Offset: offset + limit}
	}

	if offset > 0 {
		page.Prev = &Cursor{Limit: limit, Offset: max(offset-limit, 0), IsPrev: true}
	}

	return page, nil
}
