// Package transform applies the ordered list of row_transformations strictly
// before deduplication and mapping. Every operator is pure over the
// row stream: it consumes rows and produces rows, preserving
// source_row_number (clones from an explode share the parent's number).
package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rowforge/ingest/internal/model"
)

// Apply runs the ordered row_transformations over rows and returns the
// resulting row sequence.
func Apply(rows []model.Row, ops []model.RowOp) ([]model.Row, error) {
	current := rows
	for _, op := range ops {
		next, err := applyOne(current, op)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

func applyOne(rows []model.Row, op model.RowOp) ([]model.Row, error) {
	switch op.Kind {
	case model.OpExplodeColumns:
		return explodeColumns(rows, op.Explode)
	case model.OpExplodeListRows:
		return explodeListRows(rows, op.ExplodeList)
	case model.OpFilterRows:
		return filterRows(rows, op.Filter)
	case model.OpRegexReplace:
		return regexReplace(rows, op.Regex)
	case model.OpConditional:
		return conditionalTransform(rows, op.Conditional)
	case model.OpConcatColumns:
		return concatColumns(rows, op.Concat)
	default:
		return nil, fmt.Errorf("transform: unknown row operator %q", op.Kind)
	}
}

func explodeColumns(rows []model.Row, o *model.ExplodeColumnsOpts) ([]model.Row, error) {
	var out []model.Row
	for _, row := range rows {
		seen := make(map[string]bool)
		emittedAny := false
		for _, src := range o.Sources {
			val := row.Values[src]
			if o.StripWhitespace {
				val = strings.TrimSpace(val)
			}
			if val == "" && !o.KeepEmpty {
				continue
			}

			key := val
			if o.Dedupe == model.DedupeCaseInsensitive {
				key = strings.ToLower(val)
			}
			if o.Dedupe != model.DedupeNone && seen[key] {
				continue
			}
			seen[key] = true

			child := row.Clone()
			if !o.IncludeOriginal {
				for _, s := range o.Sources {
					delete(child.Values, s)
				}
			}
			child.Values[o.Target] = val
			out = append(out, child)
			emittedAny = true
		}
		if !emittedAny && o.KeepEmpty {
			child := row.Clone()
			child.Values[o.Target] = ""
			out = append(out, child)
		}
	}
	return out, nil
}

func explodeListRows(rows []model.Row, o *model.ExplodeListRowsOpts) ([]model.Row, error) {
	delims := o.Delimiters
	if len(delims) == 0 {
		delims = []string{",", ";"}
	}

	var out []model.Row
	for _, row := range rows {
		raw := row.Values[o.Source]
		parts := splitAny(raw, delims)

		seen := make(map[string]bool)
		emittedAny := false
		for _, p := range parts {
			val := p
			if o.StripWhitespace {
				val = strings.TrimSpace(val)
			}
			if val == "" && !o.KeepEmpty {
				continue
			}

			key := val
			if o.Dedupe == model.DedupeCaseInsensitive {
				key = strings.ToLower(val)
			}
			if o.Dedupe != model.DedupeNone && seen[key] {
				continue
			}
			seen[key] = true

			child := row.Clone()
			delete(child.Values, o.Source)
			child.Values[o.Target] = val
			out = append(out, child)
			emittedAny = true
		}
		if !emittedAny && o.KeepEmpty {
			child := row.Clone()
			child.Values[o.Target] = ""
			out = append(out, child)
		}
	}
	return out, nil
}

func splitAny(s string, delims []string) []string {
	if s == "" {
		return nil
	}
	joined := strings.Join(delims, "")
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(joined, r)
	})
}

func filterRows(rows []model.Row, o *model.FilterRowsOpts) ([]model.Row, error) {
	var include, exclude *regexp.Regexp
	var err error
	if o.IncludeRegex != "" {
		include, err = regexp.Compile(o.IncludeRegex)
		if err != nil {
			return nil, fmt.Errorf("transform: invalid include_regex: %w", err)
		}
	}
	if o.ExcludeRegex != "" {
		exclude, err = regexp.Compile(o.ExcludeRegex)
		if err != nil {
			return nil, fmt.Errorf("transform: invalid exclude_regex: %w", err)
		}
	}

	var out []model.Row
	for _, row := range rows {
		cols := o.Columns
		if len(cols) == 0 {
			cols = row.VisibleColumns()
		}

		includeMatch := include == nil
		excludeMatch := false
		for _, c := range cols {
			v := row.Values[c]
			if include != nil && include.MatchString(v) {
				includeMatch = true
			}
			if exclude != nil && exclude.MatchString(v) {
				excludeMatch = true
			}
		}
		if includeMatch && !excludeMatch {
			out = append(out, row)
		}
	}
	return out, nil
}

func regexReplace(rows []model.Row, o *model.RegexReplaceOpts) ([]model.Row, error) {
	re, err := regexp.Compile(o.Pattern)
	if err != nil {
		return nil, fmt.Errorf("transform: invalid regex_replace pattern: %w", err)
	}

	out := make([]model.Row, len(rows))
	for i, row := range rows {
		child := row.Clone()
		for _, col := range o.Columns {
			val := child.Values[col]
			if !re.MatchString(val) {
				if !o.SkipOnNoMatch {
					child.Values[col] = ""
				}
				continue
			}

			for outCol, group := range o.Outputs {
				child.Values[outCol] = extractGroup(re, val, group)
			}
			child.Values[col] = re.ReplaceAllString(val, o.Replacement)
		}
		out[i] = child
	}
	return out, nil
}

func extractGroup(re *regexp.Regexp, val, group string) string {
	match := re.FindStringSubmatch(val)
	if match == nil {
		return ""
	}
	for i, name := range re.SubexpNames() {
		if name == group && i < len(match) {
			return match[i]
		}
	}
	return ""
}

func conditionalTransform(rows []model.Row, o *model.ConditionalTransformOpts) ([]model.Row, error) {
	var include, exclude *regexp.Regexp
	var err error
	if o.IncludeRegex != "" {
		include, err = regexp.Compile(o.IncludeRegex)
		if err != nil {
			return nil, err
		}
	}
	if o.ExcludeRegex != "" {
		exclude, err = regexp.Compile(o.ExcludeRegex)
		if err != nil {
			return nil, err
		}
	}

	var matched, unmatched []model.Row
	for _, row := range rows {
		cols := o.Columns
		if len(cols) == 0 {
			cols = row.VisibleColumns()
		}
		isMatch := include == nil
		isExcluded := false
		for _, c := range cols {
			v := row.Values[c]
			if include != nil && include.MatchString(v) {
				isMatch = true
			}
			if exclude != nil && exclude.MatchString(v) {
				isExcluded = true
			}
		}
		if isMatch && !isExcluded {
			matched = append(matched, row)
		} else {
			unmatched = append(unmatched, row)
		}
	}

	transformed, err := Apply(matched, o.Actions)
	if err != nil {
		return nil, err
	}

	// Recombine, preserving relative order by source_row_number since
	// explode actions may have multiplied the matched set.
	out := append(transformed, unmatched...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SourceRowNumber < out[j].SourceRowNumber
	})
	return out, nil
}

func concatColumns(rows []model.Row, o *model.ConcatColumnsOpts) ([]model.Row, error) {
	out := make([]model.Row, len(rows))
	for i, row := range rows {
		child := row.Clone()
		parts := make([]string, 0, len(o.Sources))
		for _, src := range o.Sources {
			v := child.Values[src]
			if v == "" && o.SkipNulls {
				continue
			}
			if v == "" {
				v = o.NullReplacement
			}
			parts = append(parts, v)
		}
		child.Values[o.Target] = strings.Join(parts, o.Separator)
		out[i] = child
	}
	return out, nil
}
