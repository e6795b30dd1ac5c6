package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/agrionboard/internal/core"
)

// parseFilter reads a FilterSpec from query parameters. Dates accept any
// import layout; "to" covers its whole day.
func parseFilter(r *http.Request) (core.FilterSpec, error) {
	q := r.URL.Query()
	spec := core.FilterSpec{
		Search:        q.Get("search"),
		Status:        q.Get("status"),
		Stage:         q.Get("stage"),
		Region:        q.Get("region"),
		Priority:      q.Get("priority"),
		AssignedAgent: q.Get("agent"),
	}

	from, err := parseDateParam(q.Get("from"), "from")
	if err != nil {
		return spec, err
	}
	spec.From = from

	to, err := parseDateParam(q.Get("to"), "to")
	if err != nil {
		return spec, err
	}
	if to != nil {
		end := core.EndOfDay(*to)
		spec.To = &end
	}
	return spec, nil
}

func parseDateParam(value, name string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, ok := core.ParseDate(value)
	if !ok {
		return nil, core.ValidationErrorf("invalid %s date %q", name, value)
	}
	return &t, nil
}

// parseBoolParam reads a boolean query parameter, treating junk as false.
func parseBoolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
