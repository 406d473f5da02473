package session

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/translate"
	"github.com/ha1tch/pgiris/internal/types"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
)

// statementObjectType and portalObjectType are the byte tags pgproto3's
// Close/Describe messages use for their ObjectType field.
const (
	statementObjectType = 'S'
	portalObjectType    = 'P'
)

// handleParse implements the Extended Protocol Engine's Parse step: the
// statement is translated immediately so later Bind/Describe/Execute
// steps work against backend-native SQL. A statement carrying a bound
// vector placeholder (TO_VECTOR($n)) is left with that placeholder
// unresolved until Bind supplies the parameter; RewriteBoundParams
// finishes the translation then.
func (s *Session) handleParse(ctx context.Context, msg *pgproto3.Parse) error {
	translated, _, err := s.cfg.Translator.TranslateStatement(msg.Query)
	if err != nil {
		return err
	}

	stmt := &PreparedStatement{
		Name:        msg.Name,
		SourceSQL:   translated,
		ParamOIDs:   msg.ParameterOIDs,
		ReturnsRows: isSelectLike(leadingVerb(translated)),
	}

	s.mu.Lock()
	s.prepared[msg.Name] = stmt
	s.mu.Unlock()

	s.codec.Send(&pgproto3.ParseComplete{})
	return nil
}

func isSelectLike(verb string) bool {
	switch verb {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES":
		return true
	default:
		return false
	}
}

// handleBind implements Bind: it decodes the wire parameter bytes into
// BoundParams, finishes translation (splicing any bound vector parameter
// into the statement's SQL and removing it from the outgoing parameter
// list), and stores the result plus the requested result format codes on
// a new Portal.
func (s *Session) handleBind(msg *pgproto3.Bind) error {
	s.mu.Lock()
	stmt, ok := s.prepared[msg.PreparedStatement]
	s.mu.Unlock()
	if !ok {
		return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "prepared statement does not exist").
			WithDetail(msg.PreparedStatement).Err()
	}

	params := make([]translate.BoundParam, len(msg.Parameters))
	for i, raw := range msg.Parameters {
		if raw == nil {
			params[i] = translate.BoundParam{}
			continue
		}
		params[i] = translate.BoundParam{Raw: string(raw)}
	}

	sql, params, err := s.cfg.Translator.RewriteBoundParams(stmt.SourceSQL, params)
	if err != nil {
		return err
	}

	portal := &Portal{
		Name:        msg.DestinationPortal,
		Stmt:        stmt,
		SQL:         sql,
		Params:      params,
		FormatCodes: msg.ResultFormatCodes,
	}
	s.mu.Lock()
	s.portals[msg.DestinationPortal] = portal
	s.mu.Unlock()

	s.codec.Send(&pgproto3.BindComplete{})
	return nil
}

// handleDescribe implements Describe for both prepared statements and
// portals: it reports the parameter OIDs and, where the
// statement returns rows, the same RowDescription an Execute would send.
// Describe('S') always reports text format, since the result format is
// not negotiated until Bind; Describe('P') honors the portal's requested
// per-column format once the statement's columns are known.
func (s *Session) handleDescribe(msg *pgproto3.Describe) error {
	switch msg.ObjectType {
	case statementObjectType:
		s.mu.Lock()
		stmt, ok := s.prepared[msg.Name]
		s.mu.Unlock()
		if !ok {
			return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "prepared statement does not exist").
				WithDetail(msg.Name).Err()
		}
		s.codec.Send(&pgproto3.ParameterDescription{ParameterOIDs: stmt.ParamOIDs})
		if !stmt.ReturnsRows {
			s.codec.Send(&pgproto3.NoData{})
			return nil
		}
		if len(stmt.Fields) == 0 {
			s.codec.Send(&pgproto3.RowDescription{})
			return nil
		}
		s.sendRowDescriptionFromColumns(stmt.Fields)
		return nil

	case portalObjectType:
		s.mu.Lock()
		portal, ok := s.portals[msg.Name]
		s.mu.Unlock()
		if !ok {
			return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "portal does not exist").
				WithDetail(msg.Name).Err()
		}
		if !portal.Stmt.ReturnsRows {
			s.codec.Send(&pgproto3.NoData{})
			return nil
		}
		if len(portal.Stmt.Fields) == 0 {
			s.codec.Send(&pgproto3.RowDescription{})
			return nil
		}
		s.sendRowDescriptionForPortal(portal.Stmt.Fields, portal)
		return nil

	default:
		return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "unknown Describe object type").Err()
	}
}

// handleExecute implements Execute: the first Execute against a portal
// runs its statement against the Executor and caches the resulting row
// iterator and column plan on the portal; every Execute (the first and
// any that follow, for a client driving a cursor-style fetch loop with
// msg.MaxRows) then drains up to MaxRows rows from that same iterator.
// Reaching the cap with rows still pending emits PortalSuspended instead
// of CommandComplete, so the client knows to send another Execute rather
// than treating the portal as exhausted.
func (s *Session) handleExecute(ctx context.Context, msg *pgproto3.Execute) error {
	s.mu.Lock()
	portal, ok := s.portals[msg.Portal]
	s.mu.Unlock()
	if !ok {
		return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "unknown portal").
			WithDetail(msg.Portal).Err()
	}

	if !portal.executed {
		params := make([]types.Value, len(portal.Params))
		for i, p := range portal.Params {
			if p.Raw == "" {
				params[i] = types.Null()
			} else {
				params[i] = types.Text(p.Raw)
			}
		}

		verb := leadingVerb(portal.SQL)
		s.advanceTxStatus(verb, false)

		cols, rows, tag, _, err := s.cfg.Executor.Execute(ctx, s.handle, portal.SQL, params, backend.FormatText)
		if err != nil {
			s.advanceTxStatus(verb, true)
			return err
		}

		portal.executed = true
		portal.tag = tag
		portal.Stmt.Fields = cols
		if rows != nil {
			portal.rows = newPendingRows(rows)
			portal.plan = buildColumnPlan(cols, portal)
		}
	}

	if portal.rows == nil {
		s.codec.Send(&pgproto3.CommandComplete{CommandTag: []byte(portal.tag)})
		return nil
	}

	n, suspended, err := s.sendDataRowsLimited(ctx, portal.rows, portal.plan, msg.MaxRows)
	if err != nil {
		portal.rows.Close()
		return err
	}
	portal.rowsSent += n

	if suspended {
		s.codec.Send(&pgproto3.PortalSuspended{})
		return nil
	}

	portal.rows.Close()
	verb := leadingVerb(portal.SQL)
	finalTag := commandTagText(verb, portal.rowsSent)
	s.codec.Send(&pgproto3.CommandComplete{CommandTag: []byte(finalTag)})
	return nil
}

// handleClose implements Close for both statements and portals; closing
// an unknown name is not an error per the protocol.
func (s *Session) handleClose(msg *pgproto3.Close) error {
	switch msg.ObjectType {
	case statementObjectType:
		s.deletePrepared(msg.Name)
	case portalObjectType:
		s.deletePortal(msg.Name)
	default:
		return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "unknown Close object type").Err()
	}
	s.codec.Send(&pgproto3.CloseComplete{})
	return nil
}
