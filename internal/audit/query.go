package audit

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
)

// Params narrows and pages a query. Page and Limit are floats so that
// non-numeric input can travel through as NaN.
type Params struct {
	Action    string
	UserID    string
	Resource  string
	StartDate string
	EndDate   string
	Page      float64
	Limit     float64
}

// DefaultParams returns params that match everything on the first page.
func DefaultParams() Params {
	return Params{Page: DefaultPage, Limit: DefaultLimit}
}

// ParseParams reads query parameters. page and limit use their leading
// integer prefix, so "2abc" is 2 and "abc" is NaN.
func ParseParams(q url.Values) Params {
	p := DefaultParams()
	p.Action = q.Get("action")
	p.UserID = q.Get("userId")
	p.Resource = q.Get("resource")
	p.StartDate = q.Get("startDate")
	p.EndDate = q.Get("endDate")
	if v := q.Get("page"); v != "" {
		p.Page = leadingInt(v)
	}
	if v := q.Get("limit"); v != "" {
		p.Limit = leadingInt(v)
	}
	return p
}

func leadingInt(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	n, digits := 0.0, 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		n = n*10 + float64(s[digits]-'0')
		digits++
	}
	if digits == 0 {
		return math.NaN()
	}
	return sign * n
}

// Pagination describes the returned page. NaN and infinite values encode as null.
type Pagination struct {
	Total      int     `json:"total"`
	Page       float64 `json:"page"`
	Limit      float64 `json:"limit"`
	TotalPages float64 `json:"totalPages"`
}

func (p Pagination) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total      int      `json:"total"`
		Page       *float64 `json:"page"`
		Limit      *float64 `json:"limit"`
		TotalPages *float64 `json:"totalPages"`
	}{p.Total, finite(p.Page), finite(p.Limit), finite(p.TotalPages)})
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// UserRef is a distinct user seen in the log.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Filters lists the values a caller can filter on.
type Filters struct {
	Actions   []string  `json:"actions"`
	Users     []UserRef `json:"users"`
	Resources []string  `json:"resources"`
}

// Result is a page of entries plus filter metadata.
type Result struct {
	Logs       []Entry    `json:"logs"`
	Pagination Pagination `json:"pagination"`
	Filters    Filters    `json:"filters"`
}

// Query filters all by p, sorts newest first, derives filter metadata from the
// unfiltered set and returns the requested page.
func Query(all []Entry, p Params) (Result, error) {
	if all == nil {
		return Result{}, ErrNoCollection
	}

	start, hasStart, startOK := bound(p.StartDate)
	end, hasEnd, endOK := bound(p.EndDate)

	type row struct {
		e      Entry
		ts     time.Time
		parsed bool
	}
	matched := make([]row, 0, len(all))
	for _, e := range all {
		if p.Action != "" && e.Action != p.Action {
			continue
		}
		if p.UserID != "" && e.UserID != p.UserID {
			continue
		}
		if p.Resource != "" && e.Resource != p.Resource {
			continue
		}
		ts, ok := ParseTime(e.Timestamp)
		if hasStart && (!startOK || !ok || ts.Before(start)) {
			continue
		}
		if hasEnd && (!endOK || !ok || ts.After(end)) {
			continue
		}
		matched = append(matched, row{e: e, ts: ts, parsed: ok})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.parsed != b.parsed {
			return a.parsed
		}
		if !a.parsed {
			return false
		}
		return a.ts.After(b.ts)
	})

	total := len(matched)
	from, to := sliceBounds(total, (p.Page-1)*p.Limit, p.Page*p.Limit)
	logs := make([]Entry, 0, to-from)
	for _, r := range matched[from:to] {
		logs = append(logs, r.e)
	}

	return Result{
		Logs: logs,
		Pagination: Pagination{
			Total:      total,
			Page:       p.Page,
			Limit:      p.Limit,
			TotalPages: math.Ceil(float64(total) / p.Limit),
		},
		Filters: filtersFor(all),
	}, nil
}

// bound parses a date filter. has reports whether the filter was supplied at all.
func bound(s string) (t time.Time, has, ok bool) {
	if s == "" {
		return time.Time{}, false, false
	}
	t, ok = ParseTime(s)
	return t, true, ok
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 date or date-time. Values without an offset are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sliceBounds clamps [start, end) the way Array.prototype.slice does:
// NaN is zero, fractions truncate and negative values count from the end.
func sliceBounds(n int, start, end float64) (int, int) {
	from, to := relIndex(n, start), relIndex(n, end)
	if to < from {
		to = from
	}
	return from, to
}

func relIndex(n int, f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case math.IsInf(f, 1):
		return n
	case math.IsInf(f, -1):
		return 0
	}
	i := math.Trunc(f)
	if i < 0 {
		i += float64(n)
		if i < 0 {
			return 0
		}
		return int(i)
	}
	if i > float64(n) {
		return n
	}
	return int(i)
}

func filtersFor(all []Entry) Filters {
	f := Filters{Actions: []string{}, Users: []UserRef{}, Resources: []string{}}
	actions := map[string]struct{}{}
	resources := map[string]struct{}{}
	users := map[string]struct{}{}
	for _, e := range all {
		if _, ok := actions[e.Action]; !ok {
			actions[e.Action] = struct{}{}
			f.Actions = append(f.Actions, e.Action)
		}
		if _, ok := resources[e.Resource]; !ok {
			resources[e.Resource] = struct{}{}
			f.Resources = append(f.Resources, e.Resource)
		}
		if _, ok := users[e.UserID]; !ok {
			users[e.UserID] = struct{}{}
			f.Users = append(f.Users, UserRef{ID: e.UserID, Name: e.UserName, Email: e.UserEmail})
		}
	}
	return f
}
