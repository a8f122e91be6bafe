// SPDX-License-Identifier: MIT

package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/hearthside/relay/model"
)

const whereBuilderDefaultWhere = "1=1"

// Tag names are validated before they participate in any query fragment, and
// even then both names and values travel as bound parameters, never as query
// text. A name outside this pattern can simply never match.
var tagNameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,20}$`)

var ErrWhereBuilderInvalidTimeRange = errors.New("invalid time range")

type whereBuilder struct {
	Params map[string]any
	strings.Builder
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{
		Params: make(map[string]any),
	}
}

func (w *whereBuilder) addParam(filterID, name string, value any) (key string) {
	key = filterID + name
	w.Params[key] = value

	return key
}

func deduplicateSlice[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	j := 0
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		s[j] = v
		j++
	}

	return s[:j]
}

func buildFromSlice[T comparable](builder *whereBuilder, filterID string, s []T, name string) *whereBuilder {
	if len(s) == 0 {
		return builder
	}

	builder.maybeAND()
	builder.WriteString(name)
	s = deduplicateSlice(s)
	if len(s) == 1 {
		// X = :X_name.
		builder.WriteString(" = :")
		builder.WriteString(builder.addParam(filterID, name, s[0]))

		return builder
	}

	// X in (:X_name0, :X_name1, ...).
	builder.WriteString(" IN (")
	for i := range len(s) - 1 {
		builder.WriteRune(':')
		builder.WriteString(builder.addParam(filterID, name+strconv.Itoa(i), s[i]))
		builder.WriteRune(',')
	}
	builder.WriteRune(':')
	builder.WriteString(builder.addParam(filterID, name+strconv.Itoa(len(s)-1), s[len(s)-1]))
	builder.WriteRune(')')

	return builder
}

func (w *whereBuilder) isOnBegin() bool {
	if w.Len() == 0 {
		return true
	}

	s := w.String()

	return s[len(s)-1] == '('
}

func (w *whereBuilder) maybeAND() {
	if w.isOnBegin() {
		return
	}

	w.WriteString(" AND ")
}

func (w *whereBuilder) maybeOR() {
	if w.isOnBegin() {
		return
	}

	w.WriteString(" OR ")
}

func (w *whereBuilder) applyFilterTags(filterID string, tags model.TagMap) {
	const valuesMax = 21

	tagID := 0
	for tag, values := range tags {
		w.maybeAND()
		tagID++

		if !tagNameRE.MatchString(tag) || len(values) == 0 {
			// Stored tag predicates are indexed by validated names only; an
			// out-of-pattern name matches nothing rather than failing the query.
			w.WriteString("1=0")

			continue
		}
		if len(values) > valuesMax {
			values = values[:valuesMax]
		}
		values = deduplicateSlice(values)

		w.WriteString("id IN (select event_id from event_tags where tag_name = :")
		w.WriteString(w.addParam(filterID, "tag"+strconv.Itoa(tagID), tag))
		w.WriteString(" AND tag_value IN (")
		for i, value := range values {
			if i > 0 {
				w.WriteRune(',')
			}
			w.WriteRune(':')
			w.WriteString(w.addParam(filterID, "tagvalue"+strconv.Itoa(tagID<<8|i+1), value))
		}
		w.WriteString("))")
	}
}

func isFilterEmpty(filter *model.Filter) bool {
	return len(filter.IDs) == 0 &&
		len(filter.Kinds) == 0 &&
		len(filter.Authors) == 0 &&
		len(filter.Tags) == 0 &&
		filter.Since == nil &&
		filter.Until == nil
}

func (w *whereBuilder) applyTimeRange(filterID string, since, until *model.Timestamp) error {
	if since != nil && until != nil {
		if *since == *until {
			w.maybeAND()
			w.WriteString("created_at = :")
			w.WriteString(w.addParam(filterID, "timestamp", *since))

			return nil
		} else if *since > *until {
			return errors.Wrapf(ErrWhereBuilderInvalidTimeRange, "since [%d] is greater than until [%d]", *since, *until)
		}
	}

	// Events with created_at greater than or equal to since match the filter.
	if since != nil && *since > 0 {
		w.maybeAND()
		w.WriteString("created_at >= :")
		w.WriteString(w.addParam(filterID, "since", *since))
	}

	// The until bound is inclusive as well, created_at must be <= until.
	if until != nil && *until > 0 {
		w.maybeAND()
		w.WriteString("created_at <= :")
		w.WriteString(w.addParam(filterID, "until", *until))
	}

	return nil
}

func (w *whereBuilder) applyFilter(idx int, filter *model.Filter) error {
	if isFilterEmpty(filter) {
		// An empty filter matches everything. It still has to emit a clause:
		// the filters around it are ORed together, so dropping it would narrow
		// the union and swallowing it mid-list would leave a dangling OR.
		w.WriteRune('(')
		w.WriteString(whereBuilderDefaultWhere)
		w.WriteRune(')')

		return nil
	}

	filterID := "filter" + strconv.Itoa(idx) + "_"
	w.WriteRune('(') // Begin the filter section.
	buildFromSlice(w, filterID, filter.IDs, "id")
	buildFromSlice(w, filterID, filter.Kinds, "kind")
	buildFromSlice(w, filterID, filter.Authors, "pubkey")
	if err := w.applyTimeRange(filterID, filter.Since, filter.Until); err != nil {
		return err
	}
	w.applyFilterTags(filterID, filter.Tags)
	w.WriteRune(')') // End the filter section.

	return nil
}

// Build lowers the filters into a WHERE clause. Fields within a filter are
// ANDed, values within a field are ORed, filters are ORed with each other.
func (w *whereBuilder) Build(filters ...model.Filter) (sql string, params map[string]any, err error) {
	for idx := range filters {
		w.maybeOR()
		if err := w.applyFilter(idx, &filters[idx]); err != nil {
			return "", nil, errors.Wrapf(err, "failed to apply filter %d", idx)
		}
	}

	// If there are no filters, return the default WHERE clause.
	if w.Len() == 0 {
		return whereBuilderDefaultWhere, w.Params, nil
	}

	return w.String(), w.Params, nil
}
