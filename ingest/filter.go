package ingest

import (
	"fmt"

	"github.com/hupe1980/vecmigrate/model"
)

// BuildFilters derives the provider-shaped restrict structures for one
// row. Pure and deterministic; safe to call concurrently for different
// rows.
//
// Allow/deny values are stringified whatever their source type, matching
// the remote service's string-only restrict semantics: a numeric column
// value 42 becomes "42". A namespace spec whose columns are all absent on
// the row still yields an entry carrying only the namespace. An empty
// crowding return means no crowding tag.
func BuildFilters(
	row model.Row,
	specs []model.NamespaceFilterSpec,
	numeric []model.NumericFilterSpec,
	crowdingColumn string,
) (restricts []model.RestrictEntry, numericRestricts []model.NumericRestrictEntry, crowding string, err error) {
	for _, spec := range specs {
		entry := model.RestrictEntry{Namespace: spec.Namespace}
		for _, col := range spec.AllowColumns {
			if v, ok := row[col]; ok && !v.IsZero() {
				entry.AllowList = append(entry.AllowList, v.Stringify())
			}
		}
		for _, col := range spec.DenyColumns {
			if v, ok := row[col]; ok && !v.IsZero() {
				entry.DenyList = append(entry.DenyList, v.Stringify())
			}
		}
		restricts = append(restricts, entry)
	}

	for _, spec := range numeric {
		v, ok := row[spec.SourceColumn]
		if !ok || v.IsZero() {
			return nil, nil, "", &SchemaMismatchError{Column: spec.SourceColumn}
		}

		entry := model.NumericRestrictEntry{Namespace: spec.Namespace}
		switch spec.DataType {
		case model.NumericInt:
			i, ok := v.AsInt()
			if !ok {
				return nil, nil, "", fmt.Errorf("ingest: column %q value %q does not coerce to int", spec.SourceColumn, v.Stringify())
			}
			entry.ValueInt = &i
		case model.NumericFloat:
			f, ok := v.AsFloat()
			if !ok {
				return nil, nil, "", fmt.Errorf("ingest: column %q value %q does not coerce to float", spec.SourceColumn, v.Stringify())
			}
			entry.ValueFloat = &f
		default:
			return nil, nil, "", fmt.Errorf("ingest: unsupported numeric data type %q", spec.DataType)
		}
		numericRestricts = append(numericRestricts, entry)
	}

	if crowdingColumn != "" {
		v, ok := row[crowdingColumn]
		if !ok || v.IsZero() {
			return nil, nil, "", &SchemaMismatchError{Column: crowdingColumn}
		}
		crowding = v.Stringify()
	}

	return restricts, numericRestricts, crowding, nil
}
