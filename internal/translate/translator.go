package translate

import (
	"regexp"
	"time"
)

// ExecutionPath hints which downstream path a translated statement should
// take.
type ExecutionPath int

const (
	PathDirect ExecutionPath = iota
	PathVector
	PathExternal
)

// TxStatus mirrors the single-byte ReadyForQuery transaction tag.
type TxStatus byte

const (
	TxIdle    TxStatus = 'I'
	TxActive  TxStatus = 'T'
	TxFailed  TxStatus = 'E'
)

// Metrics records the per-statement translation telemetry the
// orchestrator reports.
type Metrics struct {
	NormalizationTimeMS  float64
	IdentifierCount      int
	DateLiteralCount     int
	DialectRewriteCount  int
	VectorRewriteCount   int
	SLAViolated          bool
}

// Config bundles the schema mapping and vector-optimizer configuration the
// orchestrator needs; identifier normalization, date lifting, and
// transaction rewriting have no configurable knobs.
type Config struct {
	ClientSchema  string
	BackendSchema string
	Vector        VectorOptimizerConfig

	// TypicalSLA and LargeVectorSLA bound the aggregate translation
	// overhead: typical statements must translate within
	// TypicalSLA, statements carrying a vector payload within
	// LargeVectorSLA.
	TypicalSLA     time.Duration
	LargeVectorSLA time.Duration
}

func DefaultConfig() Config {
	return Config{
		ClientSchema:   "public",
		BackendSchema:  "SQLUser",
		Vector:         DefaultVectorOptimizerConfig(),
		TypicalSLA:     5 * time.Millisecond,
		LargeVectorSLA: 10 * time.Millisecond,
	}
}

// Translator orchestrates the transaction/schema/dialect/identifier/date/
// vector rewriters in a fixed order, so later stages see stable tokens.
type Translator struct {
	cfg        Config
	identifier IdentifierNormalizer
	date       DateLiteralLifter
	txn        TransactionVerbRewriter
	dialect    DialectRewriter
	schema     *SchemaMapper
	vector     *VectorOptimizer
}

func NewTranslator(cfg Config) *Translator {
	return &Translator{
		cfg:    cfg,
		schema: NewSchemaMapper(cfg.ClientSchema, cfg.BackendSchema),
		vector: NewVectorOptimizer(cfg.Vector),
	}
}

// Reconfigure atomically swaps the schema mapping.
func (t *Translator) Reconfigure(clientSchema, backendSchema string) {
	t.schema.Reconfigure(clientSchema, backendSchema)
}

// SchemaMapper exposes the underlying mapper for output-row translation
// (translate_output is applied to result rows, not to SQL text).
func (t *Translator) SchemaMapper() *SchemaMapper { return t.schema }

// runPipeline applies steps 1-5(a) of the fixed-order translation
// pipeline: transaction verb, schema mapping, remaining dialect
// constructs, identifier normalization, date literal lifting, and the
// text-surface vector rewrite. It never touches the bound-parameter
// vector surface, since that depends on values the Parse step does not
// have yet — RewriteBoundParams applies it once Bind supplies them.
func (t *Translator) runPipeline(sql string) (string, Metrics) {
	var m Metrics

	// 1. Transaction verb rewrite.
	sql, _ = t.txn.Rewrite(sql)

	// 2. Schema mapping.
	sql = t.schema.TranslateInput(sql)

	// 2.5. Remaining dialect constructs: LIMIT n -> TOP n, ::cast, nextval.
	// Runs before identifier normalization so any bare identifier these
	// rewrites expose (e.g. a sequence name unwrapped from nextval('...'))
	// still gets upper-cased like every other backend identifier.
	sql, m.DialectRewriteCount = t.dialect.Rewrite(sql)

	// 3. Identifier normalization.
	sql, m.IdentifierCount = t.identifier.Normalize(sql)

	// 4. Date literal lifting.
	sql, m.DateLiteralCount = t.date.Lift(sql)

	// 5(a). Vector optimization, text surface.
	sql, vectorTextCount := t.vector.RewriteText(sql)
	m.VectorRewriteCount += vectorTextCount

	return sql, m
}

func (t *Translator) finishMetrics(m Metrics, start time.Time, path ExecutionPath) Metrics {
	m.NormalizationTimeMS = float64(time.Since(start)) / float64(time.Millisecond)

	sla := t.cfg.TypicalSLA
	if path == PathVector || m.VectorRewriteCount > 0 {
		sla = t.cfg.LargeVectorSLA
	}
	if time.Since(start) > sla {
		m.SLAViolated = true
	}
	return m
}

// Translate runs the full fixed-order pipeline over sql (and, for the
// bound vector surface, params) and returns the backend-native SQL, the
// remaining parameter list, and a Metrics record. Used by the simple
// query protocol, where no separate Bind step ever supplies parameter
// values, so the result is always final.
func (t *Translator) Translate(sql string, params []BoundParam, path ExecutionPath) (string, []BoundParam, Metrics, error) {
	start := time.Now()
	sql, m := t.runPipeline(sql)

	if len(params) > 0 {
		rewrittenSQL, rewrittenParams, err := t.vector.RewriteBound(sql, params)
		if err != nil {
			return sql, params, m, err
		}
		if len(rewrittenParams) != len(params) {
			m.VectorRewriteCount += len(params) - len(rewrittenParams)
		}
		sql = rewrittenSQL
		params = rewrittenParams
	}

	if err := t.vector.Validate(sql); err != nil {
		return sql, params, m, err
	}

	return sql, params, t.finishMetrics(m, start, path), nil
}

// TranslateStatement runs the pipeline over a Parse-time statement that
// may still contain a TO_VECTOR placeholder awaiting a bound parameter.
// Final validation is deferred in that case: it only becomes meaningful
// once RewriteBoundParams has spliced in the bound value at Bind time.
func (t *Translator) TranslateStatement(sql string) (string, Metrics, error) {
	start := time.Now()
	sql, m := t.runPipeline(sql)

	if !t.vector.HasPendingPlaceholder(sql) {
		if err := t.vector.Validate(sql); err != nil {
			return sql, m, err
		}
	}

	return sql, t.finishMetrics(m, start, PathDirect), nil
}

// boundVectorOperatorPattern matches a pgvector distance operator whose
// right-hand side is a TO_VECTOR call spliced in from a bound parameter.
var boundVectorOperatorPattern = regexp.MustCompile(
	`([\w."]+(?:\([^()]*\))?)\s*(<=>|<->|<#>)\s*(TO_VECTOR\('\[[^\]]*\]', FLOAT\))`)

// RewriteBoundParams finishes translating a previously-parsed statement
// once its bound parameter values are known: it splices any bound
// vector parameters into the SQL, removing them from the outgoing
// parameter list, and validates the final result before it is allowed to
// reach the backend. A distance operator whose right-hand side is such a
// spliced vector is rewritten into the backend's function form, as
// RewriteText does for an inline literal.
func (t *Translator) RewriteBoundParams(sql string, params []BoundParam) (string, []BoundParam, error) {
	sql, params, err := t.vector.RewriteBound(sql, params)
	if err != nil {
		return sql, params, err
	}
	sql = boundVectorOperatorPattern.ReplaceAllStringFunc(sql, func(match string) string {
		g := boundVectorOperatorPattern.FindStringSubmatch(match)
		call := t.vector.functionFor(g[2]) + "(" + g[1] + ", " + g[3] + ")"
		if g[2] == "<#>" && t.vector.cfg.NegateInnerProduct {
			call = "-" + call
		}
		return call
	})
	if err := t.vector.Validate(sql); err != nil {
		return sql, params, err
	}
	return sql, params, nil
}

// NextTxStatus advances a TxStatus given the outcome of the most recently
// processed statement.
func NextTxStatus(current TxStatus, isBegin, isCommitOrRollback, errored bool) TxStatus {
	switch {
	case isCommitOrRollback:
		return TxIdle
	case errored:
		if current == TxIdle {
			return TxIdle
		}
		return TxFailed
	case isBegin:
		return TxActive
	default:
		return current
	}
}
