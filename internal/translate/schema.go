package translate

import (
	"regexp"
	"strings"
	"sync"
)

// schemaColumnNames are the output columns whose values name a schema and
// so are subject to translate_output rewriting.
var schemaColumnNames = map[string]struct{}{
	"table_schema": {},
	"schema_name":  {},
	"nspname":      {},
}

// SchemaMapper implements a bidirectional, reconfigurable mapping between
// a client-visible schema (default "public") and a backend schema
// (default "SQLUser"). Reconfiguration swaps an immutable snapshot under a
// mutex, matching the "process-wide immutable-after-init data; the rare
// reconfigure path swaps pointers under a mutex" design note.
type SchemaMapper struct {
	mu   sync.RWMutex
	snap schemaSnapshot
}

type schemaSnapshot struct {
	client  string
	backend string

	qualifiedPattern *regexp.Regexp // public.X -> backend.X
	literalPattern   *regexp.Regexp // = 'public' / = "public"
}

// bareTableRefPattern matches a table reference after FROM/JOIN/UPDATE/
// INTO that carries no schema qualifier at all — the common case for
// clients relying on a default search_path of "public" rather than
// spelling it out. Group 2 is the table identifier; group 3, when
// present, is an existing ".schema"-style qualifier that means the
// reference is already qualified and must be left alone. This is a fixed
// pattern, not rebuilt on Reconfigure — only the replacement text (the
// configured backend schema) varies.
var bareTableRefPattern = regexp.MustCompile(
	`(?i)\b(FROM|JOIN|UPDATE|INTO)\s+("[^"]*"|[A-Za-z_][A-Za-z0-9_]*)(\s*\.\s*(?:"[^"]*"|[A-Za-z_][A-Za-z0-9_]*))?`)

// bareTableSkipWords are tokens that can syntactically follow FROM/JOIN/
// UPDATE/INTO without naming a table at all, so a match against one of
// these is left untouched.
var bareTableSkipWords = map[string]struct{}{
	"ONLY": {}, "LATERAL": {}, "DUAL": {},
}

// NewSchemaMapper creates a mapper with the given client/backend schema
// pair.
func NewSchemaMapper(client, backend string) *SchemaMapper {
	m := &SchemaMapper{}
	m.Reconfigure(client, backend)
	return m
}

// Reconfigure atomically swaps the client/backend schema pair. Building
// two compiled regexps completes well under a millisecond for schema
// name lengths in practice.
func (m *SchemaMapper) Reconfigure(client, backend string) {
	snap := schemaSnapshot{
		client:  client,
		backend: backend,
		qualifiedPattern: regexp.MustCompile(
			`(?i)\b` + regexp.QuoteMeta(client) + `\.`),
		literalPattern: regexp.MustCompile(
			`(?i)=\s*(['"])` + regexp.QuoteMeta(client) + `['"]`),
	}
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}

func (m *SchemaMapper) current() schemaSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// TranslateInput rewrites bare schema-qualified identifiers and schema
// comparison literals from the client schema to the backend schema.
// Backend system schemas (names beginning with "%") are never
// rewritten — there is nothing client-visible to map them from.
func (m *SchemaMapper) TranslateInput(sql string) string {
	snap := m.current()
	if strings.HasPrefix(snap.client, "%") {
		return sql
	}
	// The comparison literal is itself a quoted string, so it is matched
	// outside comments only rather than outside strings and comments.
	sql = rewriteOutsideComments(sql, func(code string) string {
		return snap.literalPattern.ReplaceAllStringFunc(code, func(m string) string {
			quote := string(m[len(m)-len(snap.client)-2])
			return "= " + quote + snap.backend + quote
		})
	})
	return rewriteCodeSegments(sql, func(code string) string {
		code = snap.qualifiedPattern.ReplaceAllString(code, snap.backend+".")
		code = bareTableRefPattern.ReplaceAllStringFunc(code, func(match string) string {
			groups := bareTableRefPattern.FindStringSubmatch(match)
			verb, name, existingQualifier := groups[1], groups[2], groups[3]
			if existingQualifier != "" {
				return match // already schema-qualified, public or otherwise
			}
			if _, skip := bareTableSkipWords[strings.ToUpper(name)]; skip {
				return match
			}
			return verb + " " + snap.backend + "." + name
		})
		return code
	})
}

// QualifyTable applies the same bare-table qualification TranslateInput
// uses inside a FROM clause to a standalone table name, for callers (COPY)
// that name a table directly rather than as part of a larger statement.
// A name that already carries a "." qualifier is returned unchanged.
func (m *SchemaMapper) QualifyTable(name string) string {
	snap := m.current()
	if strings.HasPrefix(snap.client, "%") || strings.Contains(name, ".") {
		return name
	}
	return snap.backend + "." + name
}

// TranslateOutput rewrites values of schema-named columns in returned rows
// from the backend schema back to the client-visible schema, leaving
// every other column and every non-matching value untouched.
func (m *SchemaMapper) TranslateOutput(rows [][]string, columnNames []string) {
	snap := m.current()
	for i, name := range columnNames {
		if _, ok := schemaColumnNames[strings.ToLower(name)]; !ok {
			continue
		}
		for _, row := range rows {
			if i >= len(row) {
				continue
			}
			if strings.EqualFold(row[i], snap.backend) {
				row[i] = snap.client
			}
		}
	}
}
