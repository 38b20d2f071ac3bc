package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// CompileFilter merges the persona filter template with the caller's filter. A non-empty user value
// replaces the template value for that field; everything else keeps the template value.
func CompileFilter(template domain.MetadataFilter, user *domain.MetadataFilter) domain.MetadataFilter {
	out := template
	if user != nil {
		if len(user.ContentTypes) > 0 {
			out.ContentTypes = user.ContentTypes
		}
		if user.YearFrom != nil {
			out.YearFrom = user.YearFrom
		}
		if user.YearTo != nil {
			out.YearTo = user.YearTo
		}
		if len(user.RequiredTags) > 0 {
			out.RequiredTags = user.RequiredTags
		}
		if len(user.PreferredTags) > 0 {
			out.PreferredTags = user.PreferredTags
		}
		if len(user.SourceOrgs) > 0 {
			out.SourceOrgs = user.SourceOrgs
		}
	}

	out.ContentTypes = normalizeTerms(out.ContentTypes)
	out.RequiredTags = normalizeTerms(out.RequiredTags)
	out.PreferredTags = normalizeTerms(out.PreferredTags)
	out.SourceOrgs = normalizeTerms(out.SourceOrgs)
	out.YearFrom = copyInt(out.YearFrom)
	out.YearTo = copyInt(out.YearTo)
	if out.YearFrom != nil && out.YearTo != nil && *out.YearFrom > *out.YearTo {
		out.YearFrom, out.YearTo = out.YearTo, out.YearFrom
	}
	return out
}

// normalizeTerms trims, lowercases, drops empties and deduplicates. The result is sorted so equal
// filters compile to equal values.
func normalizeTerms(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
