package catalog

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Router detects catalog-targeting SQL and decides whether a statement can
// be answered entirely from the Emulator or must be passed through to the
// backend. The detection style — lower-casing the statement and
// checking for substring membership of each catalog relation, then
// dispatching on the first match — follows pkg/storage/syscatalog.go's
// IsSystemQuery/ExecuteSystemQuery pair, adapted from SQL Server's sys.*
// views to PostgreSQL's pg_catalog/information_schema views.
type Router struct {
	gen      *Generator
	emulator *Emulator
	ns       string
}

func NewRouter(gen *Generator, emulator *Emulator, namespace string) *Router {
	return &Router{gen: gen, emulator: emulator, ns: namespace}
}

var catalogRelations = []string{
	"pg_namespace",
	"pg_class",
	"pg_attribute",
	"pg_attrdef",
	"pg_index",
	"pg_constraint",
	"pg_type",
	"information_schema.",
}

// IsCatalogQuery reports whether sql references any of the emulated
// catalog relations, case-insensitively.
func (r *Router) IsCatalogQuery(sql string) bool {
	lower := strings.ToLower(sql)
	for _, rel := range catalogRelations {
		if strings.Contains(lower, rel) {
			return true
		}
	}
	return false
}

// Target names which catalog relation a query should route to; TargetNone
// means the statement isn't a catalog query at all.
type Target string

const (
	TargetNone              Target = ""
	TargetNamespace         Target = "pg_namespace"
	TargetClass             Target = "pg_class"
	TargetAttribute         Target = "pg_attribute"
	TargetAttrDef           Target = "pg_attrdef"
	TargetIndex             Target = "pg_index"
	TargetConstraint        Target = "pg_constraint"
	TargetInformationSchema Target = "information_schema"
)

// Classify identifies which catalog relation a query targets. Order
// matters for names that are substrings of one another (pg_attrdef
// contains pg_attr... but not pg_attribute; checked first regardless).
func (r *Router) Classify(sql string) Target {
	lower := strings.ToLower(sql)
	switch {
	case strings.Contains(lower, "pg_attrdef"):
		return TargetAttrDef
	case strings.Contains(lower, "pg_attribute"):
		return TargetAttribute
	case strings.Contains(lower, "pg_namespace"):
		return TargetNamespace
	case strings.Contains(lower, "pg_class"):
		return TargetClass
	case strings.Contains(lower, "pg_index"):
		return TargetIndex
	case strings.Contains(lower, "pg_constraint"):
		return TargetConstraint
	case strings.Contains(lower, "information_schema."):
		return TargetInformationSchema
	default:
		return TargetNone
	}
}

var anyPlaceholderPattern = regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*(\$\d+|\([^)]*\))\s*\)`)

// RewriteAnyArray rewrites the `col = ANY($1)` array-comparison form some
// drivers (lib/pq, npgsql) emit for IN-style lookups against catalog
// parameters into `col IN (...)`, since the emulator never holds a real
// PostgreSQL array type to bind against.
func RewriteAnyArray(sql string, values []string) string {
	if len(values) == 0 {
		return anyPlaceholderPattern.ReplaceAllString(sql, "IN (NULL)")
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return anyPlaceholderPattern.ReplaceAllString(sql, "IN ("+strings.Join(quoted, ", ")+")")
}

var regclassPattern = regexp.MustCompile(`'([^']+)'\s*::\s*regclass`)

// ResolveRegclass replaces every 'name'::regclass cast with the literal
// OID the Generator would assign that name in the router's namespace,
// the same resolution ORMs depend on to avoid a round trip for object_id
// lookups.
func (r *Router) ResolveRegclass(sql string) string {
	return regclassPattern.ReplaceAllStringFunc(sql, func(match string) string {
		groups := regclassPattern.FindStringSubmatch(match)
		oid := r.gen.TableOID(r.ns, groups[1])
		return strconv.FormatUint(uint64(oid), 10)
	})
}

// Route answers a catalog query entirely from the Emulator when possible.
// ok is false when the query targets a catalog relation this router does
// not materialize rows for (e.g. pg_type), signaling the caller should
// fall through to the backend instead.
func (r *Router) Route(ctx context.Context, sql string) (interface{}, bool, error) {
	switch r.Classify(sql) {
	case TargetNamespace:
		return r.emulator.Namespaces(r.ns), true, nil
	case TargetClass:
		rows, err := r.emulator.Classes(ctx, r.ns)
		return rows, err == nil, err
	case TargetAttribute:
		rows, err := r.emulator.Attributes(ctx, r.ns)
		return rows, err == nil, err
	case TargetAttrDef:
		rows, err := r.emulator.AttrDefaults(ctx, r.ns)
		return rows, err == nil, err
	case TargetIndex:
		rows, err := r.emulator.Indexes(ctx, r.ns)
		return rows, err == nil, err
	case TargetConstraint:
		rows, err := r.emulator.Constraints(ctx, r.ns)
		return rows, err == nil, err
	default:
		return nil, false, nil
	}
}
