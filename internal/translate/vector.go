package translate

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
)

// vectorOperatorPattern matches a pgvector distance operator followed by a
// bracketed JSON-array literal: lhs <op> '[...]'.
var vectorOperatorPattern = regexp.MustCompile(
	`([\w."]+(?:\([^()]*\))?)\s*(<=>|<->|<#>)\s*'(\[[^\]]*\])'`)

// toVectorPlaceholderPattern matches TO_VECTOR(?) / TO_VECTOR($n) /
// TO_VECTOR(%s) — a placeholder nested directly inside a TO_VECTOR call,
// the surface form the backend requires for parameter-bound vectors.
var toVectorPlaceholderPattern = regexp.MustCompile(
	`(?i)TO_VECTOR\s*\(\s*(\?|\$(\d+)|%s)\s*\)`)

// toVectorValidationPattern asserts every TO_VECTOR( in the output is
// followed by a bracketed literal and a type keyword.
var toVectorValidationPattern = regexp.MustCompile(
	`(?i)TO_VECTOR\(\s*'\[[^\]]*\]'\s*,\s*(FLOAT|DOUBLE)\s*(,\s*\d+\s*)?\)`)
var anyToVectorPattern = regexp.MustCompile(`(?i)TO_VECTOR\(`)

// VectorOptimizerConfig controls the optional sign-compensation behavior
// for the inner-product operator.
type VectorOptimizerConfig struct {
	// NegateInnerProduct matches pgvector's own convention that <#> returns
	// the negated inner product; when true the optimizer wraps the
	// VECTOR_DOT_PRODUCT call in a unary minus so PostgreSQL-equivalent
	// ORDER BY ASC semantics are preserved.
	NegateInnerProduct bool
}

// DefaultVectorOptimizerConfig returns the default: <#> results are
// negated to match pgvector's own inner-product sign convention.
func DefaultVectorOptimizerConfig() VectorOptimizerConfig {
	return VectorOptimizerConfig{NegateInnerProduct: true}
}

// VectorOptimizer detects pgvector operators and bound vector parameters
// and rewrites them into backend vector function calls, preserving the
// bracketed literal form the backend's compiler requires.
type VectorOptimizer struct {
	cfg VectorOptimizerConfig
}

func NewVectorOptimizer(cfg VectorOptimizerConfig) *VectorOptimizer {
	return &VectorOptimizer{cfg: cfg}
}

func (o *VectorOptimizer) functionFor(op string) string {
	switch op {
	case "<=>":
		return "VECTOR_COSINE"
	case "<->":
		return "VECTOR_L2"
	case "<#>":
		return "VECTOR_DOT_PRODUCT"
	default:
		return ""
	}
}

// RewriteText handles surface (a): SQL text containing a pgvector operator
// with a bracketed JSON-array right-hand side.
func (o *VectorOptimizer) RewriteText(sql string) (string, int) {
	count := 0
	out := rewriteOutsideComments(sql, func(code string) string {
		return vectorOperatorPattern.ReplaceAllStringFunc(code, func(match string) string {
			groups := vectorOperatorPattern.FindStringSubmatch(match)
			lhs, op, literal := groups[1], groups[2], groups[3]
			fn := o.functionFor(op)
			if fn == "" {
				return match
			}
			count++
			call := fmt.Sprintf("%s(%s, TO_VECTOR('%s', FLOAT))", fn, lhs, literal)
			if op == "<#>" && o.cfg.NegateInnerProduct {
				call = "-" + call
			}
			return call
		})
	})
	return out, count
}

// BoundParam is one element of an extended-protocol parameter list: the
// raw text/binary encoding of the value as the wire protocol delivered
// it, decoded lazily by whichever rewriter needs the typed form.
type BoundParam struct {
	Raw string
}

// HasPendingPlaceholder reports whether sql still contains a TO_VECTOR
// placeholder awaiting a bound parameter. Parse-time translation defers
// validation when this is true, since the statement will only become
// complete once Bind supplies the parameter value.
func (o *VectorOptimizer) HasPendingPlaceholder(sql string) bool {
	return toVectorPlaceholderPattern.MatchString(sql)
}

// RewriteBound handles surface (b): a placeholder nested inside
// TO_VECTOR(...) whose bound parameter decodes to a vector. It inlines
// the vector as a canonical bracketed literal and removes that parameter
// from the outgoing list, preserving the order of the remaining
// parameters.
func (o *VectorOptimizer) RewriteBound(sql string, params []BoundParam) (string, []BoundParam, error) {
	if !toVectorPlaceholderPattern.MatchString(sql) {
		return sql, params, nil
	}

	remaining := make([]BoundParam, 0, len(params))
	paramIndex := 0
	var rewriteErr error

	out := toVectorPlaceholderPattern.ReplaceAllStringFunc(sql, func(match string) string {
		if rewriteErr != nil {
			return match
		}
		if paramIndex >= len(params) {
			rewriteErr = pgiriserrors.New(pgiriserrors.KindTranslation,
				"TO_VECTOR placeholder has no corresponding bound parameter").Err()
			return match
		}
		p := params[paramIndex]
		paramIndex++

		vec, err := DecodeVectorLiteral(p.Raw)
		if err != nil {
			remaining = append(remaining, p)
			return match
		}
		literal := encodeVectorBracketed(vec)
		return "TO_VECTOR('" + literal + "', FLOAT)"
	})

	if rewriteErr != nil {
		return sql, params, rewriteErr
	}
	// Any params beyond the ones consumed by TO_VECTOR placeholders are
	// passed through untouched, in original order.
	remaining = append(remaining, params[paramIndex:]...)
	return out, remaining, nil
}

// Validate checks the post-rewrite invariant that every TO_VECTOR( call is
// followed by a bracketed literal and a valid type keyword. On failure it returns the offending fragment.
func (o *VectorOptimizer) Validate(sql string) error {
	locs := anyToVectorPattern.FindAllStringIndex(sql, -1)
	for _, loc := range locs {
		end := loc[1] + 200
		if end > len(sql) {
			end = len(sql)
		}
		fragment := sql[loc[0]:end]
		if !toVectorValidationPattern.MatchString(fragment) {
			return pgiriserrors.New(pgiriserrors.KindTranslation,
				"vector literal missing brackets or type keyword").
				WithDetail(fragment).
				Err()
		}
	}
	return nil
}

// DecodeVectorLiteral decodes any of the accepted surface forms for a
// VectorLiteral: JSON array, bare comma-separated floats, or
// base64-packed little-endian float32 prefixed with "base64:". It uses
// pgvector-go's Vector type as the canonical in-memory representation
// (grounded in other_examples' AgenticGoKit pgvector_memory.go, which
// already depends on this library for the same purpose) instead of
// hand-rolling float32 slice parsing.
func DecodeVectorLiteral(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "base64:"):
		return decodeBase64Vector(raw[len("base64:"):])
	case strings.HasPrefix(raw, "["):
		var floats []float32
		if err := json.Unmarshal([]byte(raw), &floats); err != nil {
			return nil, err
		}
		return pgvector.NewVector(floats).Slice(), nil
	default:
		parts := strings.Split(raw, ",")
		floats := make([]float32, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
			if err != nil {
				return nil, err
			}
			floats = append(floats, float32(f))
		}
		return pgvector.NewVector(floats).Slice(), nil
	}
}

func decodeBase64Vector(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("base64 vector payload length %d is not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

func encodeVectorBracketed(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
