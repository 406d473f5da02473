package session

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/copyproto"
	"github.com/ha1tch/pgiris/internal/translate"
)

// handleQuery implements the Simple Query protocol: catalog
// queries are answered entirely from the Emulator via the Router, and
// everything else runs the translation pipeline before reaching the
// Executor.
func (s *Session) handleQuery(ctx context.Context, msg *pgproto3.Query) error {
	sqlText := msg.String

	if s.cfg.Catalog != nil && s.cfg.Catalog.IsCatalogQuery(sqlText) {
		resolved := s.cfg.Catalog.ResolveRegclass(sqlText)
		payload, ok, err := s.cfg.Catalog.Route(ctx, resolved)
		if err != nil {
			return err
		}
		if ok {
			fields, rows, err := catalogRowsToWire(payload)
			if err != nil {
				return err
			}
			n := s.sendCatalogResult(fields, rows)
			s.codec.Send(&pgproto3.CommandComplete{CommandTag: []byte(commandTagText("SELECT", n))})
			s.sendReady()
			return nil
		}
	}

	if copyStmt, isCopy, err := copyproto.ParseStatement(sqlText); isCopy {
		if err != nil {
			return err
		}
		return s.handleCopy(ctx, copyStmt)
	}

	translated, _, _, err := s.cfg.Translator.Translate(sqlText, nil, translate.PathDirect)
	if err != nil {
		return err
	}

	verb := leadingVerb(translated)
	s.advanceTxStatus(verb, false)

	cols, rows, tag, _, err := s.cfg.Executor.Execute(ctx, s.handle, translated, nil, backend.FormatText)
	if err != nil {
		s.advanceTxStatus(verb, true)
		return err
	}

	finalTag := string(tag)
	if rows != nil {
		defer rows.Close()
		oids := s.sendRowDescriptionFromColumns(cols)
		n, err := s.sendDataRows(ctx, rows, oids)
		if err != nil {
			return err
		}
		finalTag = commandTagText(verb, n)
	}
	s.codec.Send(&pgproto3.CommandComplete{CommandTag: []byte(finalTag)})
	s.sendReady()
	return nil
}

// handleCopy drives one COPY subprotocol exchange via the copyproto
// Handler, translating a table-form COPY TO STDOUT into the equivalent
// SELECT so it passes through the same schema/identifier rewrites as any
// other statement. Table and column names given directly (not inside a
// query) are schema-qualified and case-normalized by hand, since they
// never pass through the Translator.
func (s *Session) handleCopy(ctx context.Context, stmt *copyproto.Statement) error {
	s.advanceTxStatus("COPY", false)

	var (
		n   int64
		err error
	)
	switch stmt.Direction {
	case copyproto.DirectionIn:
		table := strings.ToUpper(s.cfg.Translator.SchemaMapper().QualifyTable(stmt.Table))
		columns := make([]string, len(stmt.Columns))
		for i, c := range stmt.Columns {
			columns[i] = strings.ToUpper(c)
		}
		n, err = s.cfg.Copy.CopyIn(ctx, s.codec, s.handle, table, columns, stmt.Options)
	case copyproto.DirectionOut:
		query := stmt.Query
		if query == "" {
			query = buildCopyOutSelect(stmt.Table, stmt.Columns)
		}
		translated, _, _, terr := s.cfg.Translator.Translate(query, nil, translate.PathDirect)
		if terr != nil {
			s.advanceTxStatus("COPY", true)
			return terr
		}
		n, err = s.cfg.Copy.CopyOut(ctx, s.codec, s.handle, translated, stmt.Options)
	}
	if err != nil {
		s.advanceTxStatus("COPY", true)
		return err
	}

	s.codec.Send(&pgproto3.CommandComplete{CommandTag: []byte("COPY " + strconv.FormatInt(n, 10))})
	s.sendReady()
	return nil
}

func buildCopyOutSelect(table string, columns []string) string {
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ", ")
	}
	return "SELECT " + cols + " FROM " + table
}

func leadingVerb(sqlText string) string {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n")
	end := strings.IndexAny(trimmed, " \t\r\n(")
	if end < 0 {
		end = len(trimmed)
	}
	return strings.ToUpper(trimmed[:end])
}

func (s *Session) advanceTxStatus(verb string, errored bool) {
	isBegin := verb == "BEGIN" || verb == "START"
	isCommitOrRollback := verb == "COMMIT" || verb == "ROLLBACK" || verb == "END"
	s.mu.Lock()
	s.txStatus = translate.NextTxStatus(s.txStatus, isBegin, isCommitOrRollback, errored)
	s.mu.Unlock()
}

// commandTagText builds the CommandComplete tag for a row-returning
// statement. WITH and VALUES report under the SELECT tag, matching
// PostgreSQL's own libpq convention for non-DML row-returning commands.
func commandTagText(verb string, n int64) string {
	switch verb {
	case "SELECT", "SHOW", "EXPLAIN":
		return verb + " " + strconv.FormatInt(n, 10)
	case "WITH", "VALUES":
		return "SELECT " + strconv.FormatInt(n, 10)
	default:
		return verb
	}
}
