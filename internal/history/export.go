package history

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Columns is the export header row
var Columns = []string{
	"氏名", "ふりがな", "性別", "生年月日", "年齢", "メールアドレス",
	"電話番号", "住所", "学校名", "応募No", "送信日時", "送信結果",
}

func (r Row) values() []string {
	return []string{
		r.Name, r.Furigana, r.Gender, r.Birth, r.Age, r.Email,
		r.Tel, r.Addr, r.School, r.OuboNo, r.SentAt, r.Result(),
	}
}

// WriteCSV writes rows as UTF-8 CSV with a byte-order mark. Every field is
// quoted and rows are separated by a bare newline.
func WriteCSV(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("\uFEFF")
	writeCSVLine(bw, Columns)
	for _, r := range rows {
		bw.WriteByte('\n')
		writeCSVLine(bw, r.values())
	}
	return bw.Flush()
}

func writeCSVLine(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(QuoteCSV(f))
	}
}

// QuoteCSV wraps s in double quotes, doubling embedded quotes
func QuoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ExportFilename returns history_YYYY-MM-DD_HH_MM_SS.<ext>
func ExportFilename(now time.Time, ext string) string {
	return fmt.Sprintf("history_%s.%s", now.Format("2006-01-02_15_04_05"), ext)
}

const xlsxSheet = "History"

// WriteXLSX writes rows as a single-sheet workbook
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := setRow(f, 1, Columns); err != nil {
		return err
	}
	for i, r := range rows {
		if err := setRow(f, i+2, r.values()); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(xlsxSheet, "A", "L", 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write row %d: %w", n, err)
	}
	return nil
}
