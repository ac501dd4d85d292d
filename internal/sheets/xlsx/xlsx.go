// Package xlsx renders the transaction collection as an Excel workbook, for
// downloads and offline mirrors of the Google Sheets export.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
	ports "smartbudget/internal/sheets"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultSheet = "Transactions"
	amountColumn = 5
)

var columnWidths = map[string]float64{"A": 38, "B": 12, "C": 10, "D": 14, "E": 32, "F": 14, "G": 20}

// Write encodes txs as a single-sheet workbook: the export header followed
// by one row per transaction. Amounts are numeric cells.
func Write(out io.Writer, sheetName string, txs []core.Transaction) error {
	if sheetName == "" {
		sheetName = defaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	header := toCells(ports.Header)
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(ports.Header), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, tx := range txs {
		cells := toCells(ports.Row(tx))
		cells[amountColumn] = tx.Amount.InexactFloat64()
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	for col, width := range columnWidths {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	return nil
}

func toCells(cols []string) []any {
	out := make([]any, len(cols))
	for i, v := range cols {
		out[i] = v
	}
	return out
}

// FileMirror keeps a workbook on disk in sync with the whole collection.
type FileMirror struct {
	path      string
	sheetName string
	logger    *log.Logger
}

var _ ports.TransactionMirror = (*FileMirror)(nil)

func NewFileMirror(path, sheetName string, logger *log.Logger) *FileMirror {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &FileMirror{
		path:      path,
		sheetName: sheetName,
		logger:    logger.WithComponent(log.ComponentSheets),
	}
}

// Replace rewrites the workbook. The new file is written next to the old
// one and renamed over it, so readers never see a partial workbook.
func (m *FileMirror) Replace(ctx context.Context, txs []core.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".smartbudget-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, m.sheetName, txs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("replace %s: %w", m.path, err)
	}
	m.logger.InfoContext(ctx, "Workbook written", log.FieldCount, len(txs), "path", m.path)
	return nil
}
