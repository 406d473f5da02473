package session

import (
	"context"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/auth"
	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/translate"
	"github.com/ha1tch/pgiris/internal/types"
	"github.com/ha1tch/pgiris/internal/wire"
)

// fakeHandle satisfies backend.Handle for these tests; Cancel is never
// exercised by the Extended Protocol paths under test.
type fakeHandle struct{}

func (fakeHandle) Cancel(ctx context.Context) error { return nil }

// fakeRows replays a fixed slice of rows, letting a test assert the
// exact SQL that reached Execute and control how many rows come back.
type fakeRows struct {
	rows [][]types.Value
	pos  int
}

func (r *fakeRows) Next(ctx context.Context) bool { return r.pos < len(r.rows) }
func (r *fakeRows) Scan() ([]types.Value, error) {
	v := r.rows[r.pos]
	r.pos++
	return v, nil
}
func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

// fakeExecutor records the SQL and params passed to Execute so tests can
// assert on what the translation layer produced, and returns a canned
// column/row set.
type fakeExecutor struct {
	gotSQL    string
	gotParams []types.Value
	cols      []backend.Column
	rows      [][]types.Value
	tag       backend.CommandTag
}

func (e *fakeExecutor) Acquire(ctx context.Context, namespace string) (backend.Handle, error) {
	return fakeHandle{}, nil
}
func (e *fakeExecutor) Release(h backend.Handle) {}
func (e *fakeExecutor) Execute(ctx context.Context, h backend.Handle, sql string, params []types.Value, format backend.ResultFormat) ([]backend.Column, backend.Rows, backend.CommandTag, int64, error) {
	e.gotSQL = sql
	e.gotParams = params
	if e.cols == nil {
		return nil, nil, e.tag, 0, nil
	}
	return e.cols, &fakeRows{rows: e.rows}, e.tag, int64(len(e.rows)), nil
}
func (e *fakeExecutor) Begin(ctx context.Context, h backend.Handle) error    { return nil }
func (e *fakeExecutor) Commit(ctx context.Context, h backend.Handle) error   { return nil }
func (e *fakeExecutor) Rollback(ctx context.Context, h backend.Handle) error { return nil }
func (e *fakeExecutor) BulkInsert(ctx context.Context, h backend.Handle, table string, columns []string, rows <-chan []types.Value, batchSize int) (int64, error) {
	return 0, nil
}
func (e *fakeExecutor) StreamSelect(ctx context.Context, h backend.Handle, sql string) ([]backend.Column, backend.Rows, error) {
	return nil, nil, nil
}
func (e *fakeExecutor) Close() error { return nil }

// newTestSession wires a Session directly to a fakeExecutor over a
// net.Pipe, returning the Session (with its handle already acquired, as
// Run would do) plus a pgproto3.Frontend reading the other end so tests
// can decode whatever the Session sends.
func newTestSession(t *testing.T, exec *fakeExecutor) (*Session, *pgproto3.Frontend) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	codec := wire.NewCodec(serverConn, 0)
	cfg := Config{
		Translator: translate.NewTranslator(translate.DefaultConfig()),
		Executor:   exec,
		Namespace:  "USER",
	}
	s := New(cfg, &auth.Session{User: "test", Database: "USER"}, codec)
	s.handle = fakeHandle{}

	frontend := pgproto3.NewFrontend(pgproto3.NewChunkReader(clientConn), clientConn)
	return s, frontend
}

// flushAndReceive flushes whatever the Session buffered and reads
// exactly n backend messages from the frontend side, running both
// halves concurrently since net.Pipe is unbuffered and a single Flush
// can carry several messages written by one handler call.
func flushAndReceive(t *testing.T, s *Session, frontend *pgproto3.Frontend, n int) []pgproto3.BackendMessage {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.codec.Flush() }()
	msgs := make([]pgproto3.BackendMessage, n)
	for i := 0; i < n; i++ {
		msg, err := frontend.Receive()
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		msgs[i] = cloneBackendMessage(msg)
	}
	if err := <-done; err != nil {
		t.Fatalf("flush: %v", err)
	}
	return msgs
}

// cloneBackendMessage copies fields the tests inspect out of pgproto3's
// reused message buffers, since the Frontend overwrites them in place on
// the next Receive call.
func cloneBackendMessage(msg pgproto3.BackendMessage) pgproto3.BackendMessage {
	switch m := msg.(type) {
	case *pgproto3.DataRow:
		values := make([][]byte, len(m.Values))
		for i, v := range m.Values {
			if v != nil {
				values[i] = append([]byte(nil), v...)
			}
		}
		return &pgproto3.DataRow{Values: values}
	case *pgproto3.CommandComplete:
		return &pgproto3.CommandComplete{CommandTag: append([]byte(nil), m.CommandTag...)}
	default:
		return msg
	}
}

func TestExtendedProtocolBindsVectorParameter(t *testing.T) {
	exec := &fakeExecutor{tag: backend.CommandTag("SELECT 0")}
	s, frontend := newTestSession(t, exec)
	ctx := context.Background()

	if err := s.handleParse(ctx, &pgproto3.Parse{
		Query: `SELECT id FROM vecs ORDER BY embedding <=> TO_VECTOR(?) LIMIT 5`,
	}); err != nil {
		t.Fatalf("handleParse: %v", err)
	}
	if _, ok := flushAndReceive(t, s, frontend, 1)[0].(*pgproto3.ParseComplete); !ok {
		t.Fatalf("expected ParseComplete")
	}

	if err := s.handleBind(&pgproto3.Bind{
		Parameters: [][]byte{[]byte("[0.1,0.2,0.3]")},
	}); err != nil {
		t.Fatalf("handleBind: %v", err)
	}
	if _, ok := flushAndReceive(t, s, frontend, 1)[0].(*pgproto3.BindComplete); !ok {
		t.Fatalf("expected BindComplete")
	}

	if err := s.handleExecute(ctx, &pgproto3.Execute{}); err != nil {
		t.Fatalf("handleExecute: %v", err)
	}
	if _, ok := flushAndReceive(t, s, frontend, 1)[0].(*pgproto3.CommandComplete); !ok {
		t.Fatalf("expected CommandComplete")
	}

	want := `SELECT TOP 5 ID FROM SQLUSER.VECS ORDER BY VECTOR_COSINE(EMBEDDING, TO_VECTOR('[0.1,0.2,0.3]', FLOAT))`
	if exec.gotSQL != want {
		t.Fatalf("got SQL %q, want %q", exec.gotSQL, want)
	}
	if len(exec.gotParams) != 0 {
		t.Fatalf("expected the vector param consumed from the outgoing list, got %+v", exec.gotParams)
	}
}

func TestExtendedProtocolMaxRowsSuspendsPortal(t *testing.T) {
	exec := &fakeExecutor{
		tag:  backend.CommandTag("SELECT 3"),
		cols: []backend.Column{{Name: "id", BackendType: "BIGINT"}},
		rows: [][]types.Value{
			{types.Int(1)},
			{types.Int(2)},
			{types.Int(3)},
		},
	}
	s, frontend := newTestSession(t, exec)
	ctx := context.Background()

	if err := s.handleParse(ctx, &pgproto3.Parse{Query: `SELECT id FROM vecs`}); err != nil {
		t.Fatalf("handleParse: %v", err)
	}
	flushAndReceive(t, s, frontend, 1)

	if err := s.handleBind(&pgproto3.Bind{}); err != nil {
		t.Fatalf("handleBind: %v", err)
	}
	flushAndReceive(t, s, frontend, 1)

	// First Execute hits the 2-row cap with a third row still pending,
	// so it must emit two DataRows and PortalSuspended rather than
	// CommandComplete.
	if err := s.handleExecute(ctx, &pgproto3.Execute{MaxRows: 2}); err != nil {
		t.Fatalf("handleExecute (first): %v", err)
	}
	first := flushAndReceive(t, s, frontend, 3)
	if _, ok := first[0].(*pgproto3.DataRow); !ok {
		t.Fatalf("expected DataRow 1, got %T", first[0])
	}
	if _, ok := first[1].(*pgproto3.DataRow); !ok {
		t.Fatalf("expected DataRow 2, got %T", first[1])
	}
	if _, ok := first[2].(*pgproto3.PortalSuspended); !ok {
		t.Fatalf("expected PortalSuspended after 2 rows capped by MaxRows, got %T", first[2])
	}

	// Second Execute resumes the same portal and drains the one
	// remaining row, completing with the cumulative row count.
	if err := s.handleExecute(ctx, &pgproto3.Execute{MaxRows: 2}); err != nil {
		t.Fatalf("handleExecute (second): %v", err)
	}
	second := flushAndReceive(t, s, frontend, 2)
	if _, ok := second[0].(*pgproto3.DataRow); !ok {
		t.Fatalf("expected DataRow 3, got %T", second[0])
	}
	cc, ok := second[1].(*pgproto3.CommandComplete)
	if !ok {
		t.Fatalf("expected final CommandComplete, got %T", second[1])
	}
	if string(cc.CommandTag) != "SELECT 3" {
		t.Fatalf("got tag %q, want %q", cc.CommandTag, "SELECT 3")
	}
}
