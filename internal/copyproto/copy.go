// Package copyproto implements the COPY subprotocol: CSV
// ingestion via CopyInResponse/CopyData/CopyDone/CopyFail framing into
// Executor.BulkInsert, and CSV emission via CopyOutResponse/CopyData for
// backend-sourced stream_select results.
package copyproto

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/types"
	"github.com/ha1tch/pgiris/internal/wire"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
	pgirislog "github.com/ha1tch/pgiris/pkg/log"
)

// DefaultMaxLineLength bounds a single line of COPY input before it is rejected,
// guarding against a client that never sends CopyDone.
const DefaultMaxLineLength = 1 << 20 // 1 MiB

// DefaultBatchSize is the row count flushed to BulkInsert per batch.
const DefaultBatchSize = 1000

// streamChunkSize bounds a single CopyData frame emitted during COPY OUT.
const streamChunkSize = 64 * 1024

// Handler drives one COPY subprotocol exchange over a Codec.
type Handler struct {
	Executor      backend.Executor
	MaxLineLength int
	BatchSize     int
	Log           *pgirislog.Logger
}

func New(exec backend.Executor, log *pgirislog.Logger) *Handler {
	if log == nil {
		log = pgirislog.Default()
	}
	return &Handler{Executor: exec, MaxLineLength: DefaultMaxLineLength, BatchSize: DefaultBatchSize, Log: log}
}

// CopyIn runs COPY <table> (<columns>) FROM STDIN: it announces
// CopyInResponse, reassembles CSV records across CopyData frame
// boundaries, and streams decoded rows into the Executor's BulkInsert in
// BatchSize-row batches, all inside the caller's already-open
// transaction. If opts.Header is set the first decoded line is discarded
// rather than inserted.
func (h *Handler) CopyIn(ctx context.Context, codec *wire.Codec, handle backend.Handle, table string, columns []string, opts Options) (rowCount int64, err error) {
	codec.Send(&pgproto3.CopyInResponse{
		OverallFormat:     0,
		ColumnFormatCodes: make([]uint16, len(columns)),
	})
	if err := codec.Flush(); err != nil {
		return 0, err
	}

	reader, writer := io.Pipe()
	rowsCh := make(chan []string, h.batchSize())
	parseErrCh := make(chan error, 1)

	go func() {
		defer close(rowsCh)
		cr := csv.NewReader(reader)
		cr.FieldsPerRecord = len(columns)
		cr.ReuseRecord = false
		if opts.Delimiter != 0 {
			cr.Comma = opts.Delimiter
		}
		skipHeader := opts.Header
		for {
			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				parseErrCh <- copyDataError(err)
				return
			}
			if skipHeader {
				skipHeader = false
				continue
			}
			rowsCh <- record
		}
	}()

	valuesCh := make(chan []rawRow, 1)
	go func() {
		defer close(valuesCh)
		batch := make([]rawRow, 0, h.batchSize())
		for rec := range rowsCh {
			batch = append(batch, rawRow(rec))
			if len(batch) >= h.batchSize() {
				valuesCh <- batch
				batch = make([]rawRow, 0, h.batchSize())
			}
		}
		if len(batch) > 0 {
			valuesCh <- batch
		}
	}()

	done := false
	var total int64
	lineLen := 0 // bytes seen since the last newline, across frames
	for !done {
		msg, recvErr := codec.Receive()
		if recvErr != nil {
			writer.CloseWithError(recvErr)
			return total, recvErr
		}
		switch m := msg.(type) {
		case *pgproto3.CopyData:
			for _, b := range m.Data {
				lineLen++
				if b == '\n' {
					lineLen = 0
				}
				if lineLen > h.maxLineLength() {
					writer.CloseWithError(io.ErrShortBuffer)
					return total, pgiriserrors.New(pgiriserrors.KindResource, "COPY line exceeds maximum length").Err()
				}
			}
			if _, werr := writer.Write(m.Data); werr != nil {
				return total, pgiriserrors.Wrap(werr, pgiriserrors.KindBackend, "buffering COPY data").Err()
			}
		case *pgproto3.CopyDone:
			writer.Close()
			done = true
		case *pgproto3.CopyFail:
			writer.CloseWithError(io.EOF)
			return total, pgiriserrors.New(pgiriserrors.KindCancellation, "COPY aborted by client").
				WithDetail(m.Message).Err()
		default:
			writer.CloseWithError(io.EOF)
			return total, pgiriserrors.New(pgiriserrors.KindProtocolViolation, "unexpected message during COPY IN").Err()
		}
	}

	select {
	case perr := <-parseErrCh:
		return total, perr
	default:
	}

	for batch := range valuesCh {
		n, err := h.insertCSVBatch(ctx, handle, table, columns, batch)
		total += n
		if err != nil {
			return total, err
		}
	}
	select {
	case perr := <-parseErrCh:
		return total, perr
	default:
	}
	return total, nil
}

type rawRow []string

// copyDataError wraps a CSV decode failure, preserving the offending line
// number when the standard library's csv.ParseError reports one.
func copyDataError(err error) error {
	msg := "malformed COPY data"
	if pe, ok := err.(*csv.ParseError); ok {
		msg = fmt.Sprintf("malformed COPY data at line %d", pe.StartLine)
	}
	return pgiriserrors.Wrap(err, pgiriserrors.KindProtocolViolation, msg).Err()
}

// CopyOut runs COPY (<query>) TO STDOUT: it announces CopyOutResponse,
// consumes the Executor's StreamSelect cursor, and emits each row as CSV
// text chunked across CopyData frames no larger than streamChunkSize. If
// opts.Header is set, a header row of column names is emitted first.
func (h *Handler) CopyOut(ctx context.Context, codec *wire.Codec, handle backend.Handle, query string, opts Options) (rowCount int64, err error) {
	cols, rows, err := h.Executor.StreamSelect(ctx, handle, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	codec.Send(&pgproto3.CopyOutResponse{
		OverallFormat:     0,
		ColumnFormatCodes: make([]uint16, len(cols)),
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if opts.Delimiter != 0 {
		w.Comma = opts.Delimiter
	}
	if opts.Header {
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		if err := w.Write(names); err != nil {
			return 0, pgiriserrors.Wrap(err, pgiriserrors.KindInternal, "encoding COPY OUT header").Err()
		}
	}
	var total int64
	flush := func() error {
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
		for buf.Len() > 0 {
			n := buf.Len()
			if n > streamChunkSize {
				n = streamChunkSize
			}
			chunk := make([]byte, n)
			copy(chunk, buf.Next(n))
			codec.Send(&pgproto3.CopyData{Data: chunk})
		}
		return codec.Flush()
	}

	for rows.Next(ctx) {
		vals, err := rows.Scan()
		if err != nil {
			return total, err
		}
		record := make([]string, len(vals))
		for i, v := range vals {
			b, isNull := v.EncodeText(types.OIDForBackendType(cols[i].BackendType))
			if !isNull {
				record[i] = string(b)
			}
		}
		if err := w.Write(record); err != nil {
			return total, pgiriserrors.Wrap(err, pgiriserrors.KindInternal, "encoding COPY OUT row").Err()
		}
		total++
		if buf.Len() > streamChunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}

	codec.Send(&pgproto3.CopyDone{})
	return total, codec.Flush()
}

// toValueRow converts one CSV record to Value cells; an empty field is
// treated as SQL NULL, matching COPY's default CSV null representation.
func toValueRow(rec rawRow) []types.Value {
	row := make([]types.Value, len(rec))
	for i, field := range rec {
		if field == "" {
			row[i] = types.Null()
		} else {
			row[i] = types.Text(field)
		}
	}
	return row
}

func (h *Handler) insertCSVBatch(ctx context.Context, handle backend.Handle, table string, columns []string, batch []rawRow) (int64, error) {
	rowsCh := make(chan []types.Value, len(batch))
	for _, rec := range batch {
		rowsCh <- toValueRow(rec)
	}
	close(rowsCh)
	return h.Executor.BulkInsert(ctx, handle, table, columns, rowsCh, h.batchSize())
}

func (h *Handler) batchSize() int {
	if h.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return h.BatchSize
}

func (h *Handler) maxLineLength() int {
	if h.MaxLineLength <= 0 {
		return DefaultMaxLineLength
	}
	return h.MaxLineLength
}
