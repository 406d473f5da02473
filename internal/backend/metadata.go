package backend

import (
	"context"
	"strings"

	"github.com/ha1tch/pgiris/internal/catalog"
	"github.com/ha1tch/pgiris/internal/types"
)

// MetadataSource implements catalog.MetadataSource by querying the
// backend's own INFORMATION_SCHEMA through an Executor.
type MetadataSource struct {
	exec      Executor
	namespace string // client-visible database/namespace passed to Acquire
}

func NewMetadataSource(exec Executor, namespace string) *MetadataSource {
	return &MetadataSource{exec: exec, namespace: namespace}
}

func (m *MetadataSource) acquire(ctx context.Context) (Handle, error) {
	return m.exec.Acquire(ctx, m.namespace)
}

// Tables returns every table in schema with its columns, sourced from
// INFORMATION_SCHEMA.TABLES joined with INFORMATION_SCHEMA.COLUMNS.
func (m *MetadataSource) Tables(ctx context.Context, schema string) ([]catalog.TableMeta, error) {
	h, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer m.exec.Release(h)

	_, rows, _, _, err := m.exec.Execute(ctx, h,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME",
		[]types.Value{types.Text(schema)}, FormatText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next(ctx) {
		vals, err := rows.Scan()
		if err != nil {
			return nil, err
		}
		names = append(names, vals[0].Text)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]catalog.TableMeta, 0, len(names))
	for _, name := range names {
		cols, err := m.columns(ctx, h, schema, name)
		if err != nil {
			return nil, err
		}
		out = append(out, catalog.TableMeta{Schema: schema, Name: name, Columns: cols})
	}
	return out, nil
}

func (m *MetadataSource) columns(ctx context.Context, h Handle, schema, table string) ([]catalog.ColumnMeta, error) {
	_, rows, _, _, err := m.exec.Execute(ctx, h,
		`SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`,
		[]types.Value{types.Text(schema), types.Text(table)}, FormatText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []catalog.ColumnMeta
	for rows.Next(ctx) {
		vals, err := rows.Scan()
		if err != nil {
			return nil, err
		}
		backendType := vals[1].Text
		cols = append(cols, catalog.ColumnMeta{
			Name:        vals[0].Text,
			BackendType: backendType,
			TypeOID:     types.OIDForBackendType(backendType),
			Nullable:    strings.EqualFold(vals[2].Text, "YES"),
			Default:     vals[3].Text,
		})
	}
	return cols, rows.Err()
}

// Constraints returns primary/foreign/unique/check constraints for table,
// sourced from TABLE_CONSTRAINTS joined with KEY_COLUMN_USAGE and
// REFERENTIAL_CONSTRAINTS.
func (m *MetadataSource) Constraints(ctx context.Context, schema, table string) ([]catalog.ConstraintMeta, error) {
	h, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer m.exec.Release(h)

	_, rows, _, _, err := m.exec.Execute(ctx, h,
		`SELECT tc.CONSTRAINT_NAME, tc.CONSTRAINT_TYPE
		 FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		 WHERE tc.TABLE_SCHEMA = ? AND tc.TABLE_NAME = ?`,
		[]types.Value{types.Text(schema), types.Text(table)}, FormatText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.ConstraintMeta
	for rows.Next(ctx) {
		vals, err := rows.Scan()
		if err != nil {
			return nil, err
		}
		name, typ := vals[0].Text, vals[1].Text
		cols, err := m.keyColumns(ctx, h, schema, name)
		if err != nil {
			return nil, err
		}
		cm := catalog.ConstraintMeta{Name: name, Type: typ, Columns: cols}
		if typ == "FOREIGN KEY" {
			refTable, refCols, updateAction, deleteAction, err := m.referentialTarget(ctx, h, schema, name)
			if err != nil {
				return nil, err
			}
			cm.RefTable = refTable
			cm.RefColumns = refCols
			cm.UpdateAction = updateAction
			cm.DeleteAction = deleteAction
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

func (m *MetadataSource) keyColumns(ctx context.Context, h Handle, schema, constraintName string) ([]string, error) {
	_, rows, _, _, err := m.exec.Execute(ctx, h,
		`SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		 WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = ? ORDER BY ORDINAL_POSITION`,
		[]types.Value{types.Text(schema), types.Text(constraintName)}, FormatText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next(ctx) {
		vals, err := rows.Scan()
		if err != nil {
			return nil, err
		}
		cols = append(cols, vals[0].Text)
	}
	return cols, rows.Err()
}

func (m *MetadataSource) referentialTarget(ctx context.Context, h Handle, schema, constraintName string) (table string, columns []string, updateAction, deleteAction string, err error) {
	_, rows, _, _, qerr := m.exec.Execute(ctx, h,
		`SELECT ccu.TABLE_NAME, rc.UPDATE_RULE, rc.DELETE_RULE
		 FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		 JOIN INFORMATION_SCHEMA.CONSTRAINT_COLUMN_USAGE ccu
		   ON ccu.CONSTRAINT_NAME = rc.UNIQUE_CONSTRAINT_NAME
		 WHERE rc.CONSTRAINT_SCHEMA = ? AND rc.CONSTRAINT_NAME = ?`,
		[]types.Value{types.Text(schema), types.Text(constraintName)}, FormatText)
	if qerr != nil {
		return "", nil, "", "", qerr
	}
	defer rows.Close()
	if rows.Next(ctx) {
		vals, serr := rows.Scan()
		if serr != nil {
			return "", nil, "", "", serr
		}
		table = vals[0].Text
		updateAction = vals[1].Text
		deleteAction = vals[2].Text
	}
	return table, columns, updateAction, deleteAction, rows.Err()
}

// Indexes returns every index on table, sourced from the backend's own
// index catalog; IRIS exposes this through %Library.SQLCatalog-equivalent
// views accessible as INFORMATION_SCHEMA.INDEXES in recent versions.
func (m *MetadataSource) Indexes(ctx context.Context, schema, table string) ([]catalog.IndexMeta, error) {
	h, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer m.exec.Release(h)

	_, rows, _, _, err := m.exec.Execute(ctx, h,
		`SELECT INDEX_NAME, COLUMN_NAME, "UNIQUE", PRIMARY_KEY
		 FROM INFORMATION_SCHEMA.INDEXES
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		 ORDER BY INDEX_NAME, ORDINAL_POSITION`,
		[]types.Value{types.Text(schema), types.Text(table)}, FormatText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := map[string]*catalog.IndexMeta{}
	var order []string
	for rows.Next(ctx) {
		vals, err := rows.Scan()
		if err != nil {
			return nil, err
		}
		name := vals[0].Text
		idx, ok := byName[name]
		if !ok {
			idx = &catalog.IndexMeta{Name: name}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, vals[1].Text)
		idx.IsUnique = vals[2].Int != 0
		idx.IsPrimary = vals[3].Int != 0
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]catalog.IndexMeta, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}
