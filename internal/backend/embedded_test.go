package backend

import (
	"context"
	"testing"

	"github.com/ha1tch/pgiris/internal/types"
)

func TestEmbeddedExecutorExecuteDDLAndDML(t *testing.T) {
	exec, err := NewEmbeddedExecutor(EmbeddedConfig{Driver: "sqlite3", DSN: "file::memory:?cache=shared"})
	if err != nil {
		t.Fatalf("NewEmbeddedExecutor: %v", err)
	}
	defer exec.Close()
	ctx := context.Background()

	h, err := exec.Acquire(ctx, "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer exec.Release(h)

	if _, _, _, _, err := exec.Execute(ctx, h, "CREATE TABLE widgets (id INTEGER, name TEXT)", nil, FormatText); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}

	_, _, tag, n, err := exec.Execute(ctx, h, "INSERT INTO widgets (id, name) VALUES (?, ?)",
		[]types.Value{types.Int(1), types.Text("sprocket")}, FormatText)
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows affected = %d, want 1", n)
	}
	if tag != "INSERT 0 1" {
		t.Fatalf("command tag = %q, want INSERT 0 1", tag)
	}

	cols, rows, _, _, err := exec.Execute(ctx, h, "SELECT id, name FROM widgets", nil, FormatText)
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	defer rows.Close()
	if len(cols) != 2 {
		t.Fatalf("len(cols) = %d, want 2", len(cols))
	}
	if !rows.Next(ctx) {
		t.Fatal("expected one row")
	}
	vals, err := rows.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if vals[1].Text != "sprocket" {
		t.Fatalf("name = %q, want sprocket", vals[1].Text)
	}
}

func TestEmbeddedExecutorTransaction(t *testing.T) {
	exec, err := NewEmbeddedExecutor(EmbeddedConfig{Driver: "sqlite3", DSN: "file::memory:?cache=shared2"})
	if err != nil {
		t.Fatalf("NewEmbeddedExecutor: %v", err)
	}
	defer exec.Close()
	ctx := context.Background()

	h, err := exec.Acquire(ctx, "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer exec.Release(h)

	if _, _, _, _, err := exec.Execute(ctx, h, "CREATE TABLE t (id INTEGER)", nil, FormatText); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if err := exec.Begin(ctx, h); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, _, _, _, err := exec.Execute(ctx, h, "INSERT INTO t (id) VALUES (?)", []types.Value{types.Int(7)}, FormatText); err != nil {
		t.Fatalf("INSERT in tx: %v", err)
	}
	if err := exec.Rollback(ctx, h); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	_, rows, _, _, err := exec.Execute(ctx, h, "SELECT id FROM t", nil, FormatText)
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	defer rows.Close()
	if rows.Next(ctx) {
		t.Fatal("expected no rows after rollback")
	}
}

func TestEmbeddedExecutorBulkInsert(t *testing.T) {
	exec, err := NewEmbeddedExecutor(EmbeddedConfig{Driver: "sqlite3", DSN: "file::memory:?cache=shared3"})
	if err != nil {
		t.Fatalf("NewEmbeddedExecutor: %v", err)
	}
	defer exec.Close()
	ctx := context.Background()

	h, err := exec.Acquire(ctx, "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer exec.Release(h)

	if _, _, _, _, err := exec.Execute(ctx, h, "CREATE TABLE bulk (id INTEGER, val TEXT)", nil, FormatText); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}

	rowsCh := make(chan []types.Value, 3)
	rowsCh <- []types.Value{types.Int(1), types.Text("a")}
	rowsCh <- []types.Value{types.Int(2), types.Text("b")}
	rowsCh <- []types.Value{types.Int(3), types.Text("c")}
	close(rowsCh)

	n, err := exec.BulkInsert(ctx, h, "bulk", []string{"id", "val"}, rowsCh, 2)
	if err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted = %d, want 3", n)
	}
}
