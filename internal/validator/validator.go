// Package validator implements the Query Validator: pre-execution
// checks over an LLM-produced SQL string, tokenized with the T-SQL lexer
// this system's example pack ships (github.com/ha1tch/tsqlparser/lexer)
// rather than a hand-rolled scanner.
package validator

import (
	"fmt"
	"strings"

	"github.com/ha1tch/tsqlparser/lexer"
	"github.com/ha1tch/tsqlparser/token"
	"github.com/rowforge/ingest/internal/model"
)

// Schema is the live, non-protected table/column catalog the validator
// checks references against. Protected tables are never part of this
// catalog in the first place.
type Schema struct {
	Tables map[string][]string // table name -> column names
}

// Result is one validation outcome.
type Result struct {
	Allowed bool
	Message string // "VALIDATION ERROR: ... Fix: ..." when !Allowed
}

// Validate runs layer 2 checks against sql using schema as the live catalog.
// On an internal validator panic it fails open, since blocking legitimate
// work is worse than letting a borderline query through.
func Validate(sql string, schema Schema) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Allowed: true}
		}
	}()

	toks := tokenize(sql)

	if rejected, msg := rejectsProtectedTable(toks); rejected {
		return Result{Allowed: false, Message: msg}
	}

	if rejected, msg := rejectsNonSelect(toks); rejected {
		return Result{Allowed: false, Message: msg}
	}

	if rejected, msg := rejectsDistinctOrderByMismatch(toks); rejected {
		return Result{Allowed: false, Message: msg}
	}

	if rejected, msg := rejectsUnknownReferences(toks, schema); rejected {
		return Result{Allowed: false, Message: msg}
	}

	return Result{Allowed: true}
}

func tokenize(sql string) []token.Token {
	l := lexer.New(sql)
	var toks []token.Token
	for {
		t := l.NextToken()
		if t.Type == token.EOF {
			break
		}
		if t.Type == token.COMMENT {
			continue
		}
		toks = append(toks, t)
	}
	return toks
}

// rejectsNonSelect rejects any statement whose first keyword isn't SELECT.
func rejectsNonSelect(toks []token.Token) (bool, string) {
	if len(toks) == 0 {
		return true, "VALIDATION ERROR: empty query. Fix: provide a SELECT statement."
	}
	if toks[0].Type != token.SELECT {
		return true, fmt.Sprintf("VALIDATION ERROR: statement type %q is not permitted from the natural-language query pathway. Fix: rewrite as a single SELECT statement.", strings.ToUpper(toks[0].Literal))
	}
	return false, ""
}

// rejectsProtectedTable scans for FROM/JOIN immediately followed by a
// protected table name, with or without a "public." qualifier.
func rejectsProtectedTable(toks []token.Token) (bool, string) {
	for i, t := range toks {
		if t.Type != token.FROM && t.Type != token.JOIN {
			continue
		}
		name, ok := identifierAfter(toks, i)
		if !ok {
			continue
		}
		if model.IsProtected(strings.ToLower(name)) {
			return true, fmt.Sprintf("VALIDATION ERROR: table %q is a protected system table and cannot be queried. Fix: remove %q from the query or choose a different table.", name, name)
		}
	}
	return false, ""
}

// identifierAfter returns the (possibly schema-qualified) table name
// immediately following tokens[i], unwrapping a "public." qualifier.
func identifierAfter(toks []token.Token, i int) (string, bool) {
	j := i + 1
	if j >= len(toks) || !isIdentLike(toks[j]) {
		return "", false
	}
	name := toks[j].Literal
	// schema-qualified: public.table_name
	if j+2 < len(toks) && toks[j+1].Type == token.DOT && isIdentLike(toks[j+2]) {
		name = toks[j+2].Literal
	}
	return strings.Trim(name, `"[]`), true
}

func isIdentLike(t token.Token) bool {
	return t.Type == token.IDENT || t.Type == token.QUOTED_IDENTIFIER
}

// rejectsDistinctOrderByMismatch requires every column referenced in
// ORDER BY (including inside CASE) to appear in the SELECT list, when
// SELECT DISTINCT is used.
func rejectsDistinctOrderByMismatch(toks []token.Token) (bool, string) {
	if !hasDistinct(toks) {
		return false, ""
	}

	selectList := selectListColumns(toks)
	orderByCols := orderByColumns(toks)

	for _, col := range orderByCols {
		if !containsFold(selectList, col) {
			return true, fmt.Sprintf("VALIDATION ERROR: ORDER BY column %q is not present in the SELECT DISTINCT list. Fix: add %q to the select list or remove it from ORDER BY.", col, col)
		}
	}
	return false, ""
}

func hasDistinct(toks []token.Token) bool {
	for i, t := range toks {
		if t.Type == token.SELECT && i+1 < len(toks) && toks[i+1].Type == token.DISTINCT {
			return true
		}
	}
	return false
}

// selectListColumns returns the identifiers between SELECT [DISTINCT] and
// the first FROM.
func selectListColumns(toks []token.Token) []string {
	start := -1
	for i, t := range toks {
		if t.Type == token.SELECT {
			start = i + 1
			if start < len(toks) && toks[start].Type == token.DISTINCT {
				start++
			}
			break
		}
	}
	if start < 0 {
		return nil
	}

	end := len(toks)
	for i := start; i < len(toks); i++ {
		if toks[i].Type == token.FROM {
			end = i
			break
		}
	}
	return filteredColumns(toks, start, end)
}

// filteredColumns returns bare column references in toks[start:end],
// excluding table qualifiers (ident immediately followed by DOT) and
// function names (ident immediately followed by LPAREN).
func filteredColumns(toks []token.Token, start, end int) []string {
	var cols []string
	for i := start; i < end; i++ {
		if !isIdentLike(toks[i]) {
			continue
		}
		if i+1 < len(toks) && (toks[i+1].Type == token.DOT || toks[i+1].Type == token.LPAREN) {
			continue
		}
		cols = append(cols, toks[i].Literal)
	}
	return cols
}

// clauseColumns returns the filtered column references following the first
// occurrence of start, up to (but not including) the next occurrence of any
// of the stop token types, or the end of toks.
func clauseColumns(toks []token.Token, start token.Type, stops ...token.Type) []string {
	from := -1
	for i, t := range toks {
		if t.Type == start {
			from = i + 1
			break
		}
	}
	if from < 0 {
		return nil
	}

	to := len(toks)
	for i := from; i < len(toks); i++ {
		for _, stop := range stops {
			if toks[i].Type == stop {
				to = i
			}
		}
		if to != len(toks) {
			break
		}
	}
	return filteredColumns(toks, from, to)
}

// orderByColumns returns every identifier referenced after ORDER BY,
// including those nested inside a CASE expression.
func orderByColumns(toks []token.Token) []string {
	start := -1
	for i, t := range toks {
		if t.Type == token.ORDER {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	return filteredColumns(toks, start, len(toks))
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// rejectsUnknownReferences checks every FROM/JOIN table and every bare
// column identifier against the live schema, suggesting the closest
// existing name by edit distance.
func rejectsUnknownReferences(toks []token.Token, schema Schema) (bool, string) {
	if len(schema.Tables) == 0 {
		return false, ""
	}

	var referenced []string
	for i, t := range toks {
		if t.Type != token.FROM && t.Type != token.JOIN {
			continue
		}
		name, ok := identifierAfter(toks, i)
		if !ok {
			continue
		}
		if _, known := schema.Tables[name]; !known {
			suggestion := closestName(name, tableNames(schema))
			return true, fmt.Sprintf("VALIDATION ERROR: table %q does not exist. Fix: did you mean %q?", name, suggestion)
		}
		referenced = append(referenced, name)
	}
	if len(referenced) == 0 {
		return false, ""
	}

	columns := unionColumns(schema, referenced)
	var referencedCols []string
	referencedCols = append(referencedCols, selectListColumns(toks)...)
	referencedCols = append(referencedCols, clauseColumns(toks, token.WHERE, token.ORDER, token.GROUP, token.HAVING)...)
	referencedCols = append(referencedCols, clauseColumns(toks, token.ORDER, token.SEMICOLON)...)
	referencedCols = append(referencedCols, clauseColumns(toks, token.GROUP, token.ORDER, token.HAVING)...)

	for _, col := range referencedCols {
		if containsFold(columns, col) {
			continue
		}
		suggestion := closestName(col, columns)
		return true, fmt.Sprintf("VALIDATION ERROR: column %q does not exist on %s. Fix: did you mean %q?", col, strings.Join(referenced, ", "), suggestion)
	}

	return false, ""
}

// unionColumns returns the union of every column declared on the named
// tables in schema.
func unionColumns(schema Schema, tables []string) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, t := range tables {
		for _, c := range schema.Tables[t] {
			if _, ok := seen[strings.ToLower(c)]; ok {
				continue
			}
			seen[strings.ToLower(c)] = struct{}{}
			cols = append(cols, c)
		}
	}
	return cols
}

func tableNames(schema Schema) []string {
	names := make([]string, 0, len(schema.Tables))
	for t := range schema.Tables {
		names = append(names, t)
	}
	return names
}

// closestName returns the candidate with the smallest Levenshtein distance
// to target.
func closestName(target string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := editDistance(target, c)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// editDistance is a standard Levenshtein distance over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
