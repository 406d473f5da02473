package session

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/types"
)

// fieldDescriptionFor builds one wire FieldDescription for a column whose
// PostgreSQL type OID the caller has already resolved; the size comes
// from types.TypeSize. format is the FieldDescription.Format the client
// should expect for this column (0 text, 1 binary).
func fieldDescriptionFor(name string, oid uint32, format int16) pgproto3.FieldDescription {
	return pgproto3.FieldDescription{
		Name:         []byte(name),
		TableOID:     0,
		DataTypeOID:  oid,
		DataTypeSize: types.TypeSize(oid),
		TypeModifier: -1,
		Format:       format,
	}
}

// sendRowDescriptionFromColumns sends an all-text RowDescription, used
// for Describe('S') (the result format is not yet known until Bind) and
// for the Simple Query protocol (which never negotiates binary results).
func (s *Session) sendRowDescriptionFromColumns(cols []backend.Column) []uint32 {
	fields := make([]pgproto3.FieldDescription, len(cols))
	oids := make([]uint32, len(cols))
	for i, c := range cols {
		oid := types.OIDForBackendType(c.BackendType)
		oids[i] = oid
		fields[i] = fieldDescriptionFor(c.Name, oid, 0)
	}
	s.codec.Send(&pgproto3.RowDescription{Fields: fields})
	return oids
}

// columnPlan bundles the per-column encoding decision once for a whole
// Execute, so sendDataRowsLimited need not recompute it per row.
type columnPlan struct {
	oid    uint32
	binary bool
}

// buildColumnPlan resolves each column's OID and, if portal asked for
// binary on that column and this server can deliver it, marks it binary.
// A column the client requested binary for but that has no binary
// encoder here is left as text: the client asked, the server degrades.
func buildColumnPlan(cols []backend.Column, portal *Portal) []columnPlan {
	plan := make([]columnPlan, len(cols))
	for i, c := range cols {
		oid := types.OIDForBackendType(c.BackendType)
		binary := portal.wantsBinary(i) && types.SupportsBinary(oid)
		plan[i] = columnPlan{oid: oid, binary: binary}
	}
	return plan
}

// sendRowDescriptionForPortal sends a RowDescription honoring the
// portal's per-column binary request (Describe('P') runs after Bind, so
// the requested format codes are already known).
func (s *Session) sendRowDescriptionForPortal(cols []backend.Column, portal *Portal) []columnPlan {
	plan := buildColumnPlan(cols, portal)
	fields := make([]pgproto3.FieldDescription, len(cols))
	for i, c := range cols {
		format := int16(0)
		if plan[i].binary {
			format = 1
		}
		fields[i] = fieldDescriptionFor(c.Name, plan[i].oid, format)
	}
	s.codec.Send(&pgproto3.RowDescription{Fields: fields})
	return plan
}

func encodeColumn(v types.Value, p columnPlan) []byte {
	if p.binary {
		if b, ok := v.EncodeBinary(p.oid); ok {
			return b
		}
	}
	b, isNull := v.EncodeText(p.oid)
	if isNull {
		return nil
	}
	return b
}

// pendingRows wraps a backend.Rows with one row of lookahead, so the
// caller can tell whether more rows remain after the current one without
// losing that row's data — needed to decide whether Execute should emit
// PortalSuspended once max_rows is reached.
type pendingRows struct {
	rows    backend.Rows
	primed  bool
	hasNext bool
	next    []types.Value
	err     error
}

func newPendingRows(rows backend.Rows) *pendingRows {
	return &pendingRows{rows: rows}
}

func (p *pendingRows) fill(ctx context.Context) {
	if p.primed {
		return
	}
	p.primed = true
	if p.rows.Next(ctx) {
		vals, err := p.rows.Scan()
		if err != nil {
			p.err = err
			p.hasNext = false
			return
		}
		p.hasNext = true
		p.next = vals
	}
}

// HasMore reports whether another row is available, priming the
// lookahead if this is the first call.
func (p *pendingRows) HasMore(ctx context.Context) bool {
	p.fill(ctx)
	return p.hasNext && p.err == nil
}

// Take returns the primed row and advances the lookahead by one.
func (p *pendingRows) Take(ctx context.Context) ([]types.Value, error) {
	p.fill(ctx)
	if p.err != nil {
		return nil, p.err
	}
	row := p.next
	p.next = nil
	p.hasNext = false
	p.primed = false
	return row, nil
}

func (p *pendingRows) Err() error {
	if p.err != nil {
		return p.err
	}
	return p.rows.Err()
}

func (p *pendingRows) Close() error {
	return p.rows.Close()
}

func (s *Session) sendDataRows(ctx context.Context, rows backend.Rows, oids []uint32) (int64, error) {
	var n int64
	for rows.Next(ctx) {
		vals, err := rows.Scan()
		if err != nil {
			return n, err
		}
		values := make([][]byte, len(vals))
		for i, v := range vals {
			b, isNull := v.EncodeText(oids[i])
			if !isNull {
				values[i] = b
			}
		}
		s.codec.Send(&pgproto3.DataRow{Values: values})
		n++
	}
	return n, rows.Err()
}

// sendDataRowsLimited drains up to maxRows rows from a pendingRows
// iterator (maxRows == 0 means unlimited, per the Execute wire protocol's
// own convention), encoding each column per plan. suspended is true when
// the row cap was hit with more rows still available, signaling the
// caller to emit PortalSuspended instead of CommandComplete.
func (s *Session) sendDataRowsLimited(ctx context.Context, rows *pendingRows, plan []columnPlan, maxRows uint32) (n int64, suspended bool, err error) {
	for maxRows == 0 || uint32(n) < maxRows {
		if !rows.HasMore(ctx) {
			break
		}
		vals, err := rows.Take(ctx)
		if err != nil {
			return n, false, err
		}
		values := make([][]byte, len(vals))
		for i, v := range vals {
			values[i] = encodeColumn(v, plan[i])
		}
		s.codec.Send(&pgproto3.DataRow{Values: values})
		n++
	}
	if err := rows.Err(); err != nil {
		return n, false, err
	}
	return n, maxRows != 0 && rows.HasMore(ctx), nil
}

func (s *Session) sendCatalogResult(fields []catalogField, rows [][]types.Value) int64 {
	desc := make([]pgproto3.FieldDescription, len(fields))
	oids := make([]uint32, len(fields))
	for i, f := range fields {
		oids[i] = f.oid
		desc[i] = fieldDescriptionFor(f.name, f.oid, 0)
	}
	s.codec.Send(&pgproto3.RowDescription{Fields: desc})
	for _, row := range rows {
		values := make([][]byte, len(row))
		for i, v := range row {
			b, isNull := v.EncodeText(oids[i])
			if !isNull {
				values[i] = b
			}
		}
		s.codec.Send(&pgproto3.DataRow{Values: values})
	}
	return int64(len(rows))
}
