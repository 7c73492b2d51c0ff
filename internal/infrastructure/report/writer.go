package report

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/domain/matching"
)

// ContentType is the MIME type of the rendered workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetMatches = "Matches"
	sheetItems   = "Items"
	sheetSummary = "Summary"
)

var matchHeaders = []string{
	"Match Number", "Facility", "Invoice Number", "Vendor Ref", "Invoice Date", "Due Date",
	"Invoice Amount", "PO Amount", "GRN Amount", "Amount Variance", "Variance %",
	"Status", "Suggested", "Integrity Warning", "Approved By", "Payment Ref",
}

var itemHeaders = []string{
	"Match Number", "Line", "Item", "PO Qty", "GRN Qty", "Invoice Qty",
	"PO Price", "Invoice Price", "Qty Variance", "Price Variance", "Total Variance",
	"Variance Type", "Notes",
}

// Writer renders invoice matches into an xlsx workbook
type Writer struct {
	now func() time.Time
}

// NewWriter creates a report writer
func NewWriter() *Writer {
	return &Writer{now: func() time.Time { return time.Now().UTC() }}
}

// Render builds a workbook with one row per match, one row per item and a
// status summary. Matches must carry their items.
func (w *Writer) Render(matches []*entity.InvoiceMatch) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetMatches); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetItems, sheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("create amount style: %w", err)
	}

	if err := writeHeader(f, sheetMatches, matchHeaders, header); err != nil {
		return nil, err
	}
	if err := writeHeader(f, sheetItems, itemHeaders, header); err != nil {
		return nil, err
	}

	itemRow := 2
	for i, m := range matches {
		row := i + 2
		grnAmount := interface{}("")
		if m.HasGRN() {
			grnAmount = num(m.GRNAmount)
		}
		values := []interface{}{
			m.MatchNumber, m.FacilityID, m.InvoiceNumber, m.VendorInvoiceRef,
			m.InvoiceDate.Format("2006-01-02"), m.DueDate.Format("2006-01-02"),
			num(m.InvoiceAmount), num(m.POAmount), grnAmount, num(m.AmountVariance), num(m.VariancePercent),
			m.Status.String(), m.SuggestedStatus.String(), m.IntegrityWarning, m.ApprovedByID, m.PaymentReference,
		}
		if err := writeRow(f, sheetMatches, row, values); err != nil {
			return nil, err
		}
		if err := styleRange(f, sheetMatches, row, 7, 11, amount); err != nil {
			return nil, err
		}

		for _, it := range m.Items {
			grnQty := interface{}("")
			if it.GRNQuantity.Valid {
				grnQty = num(it.GRNQuantity.Decimal)
			}
			values := []interface{}{
				m.MatchNumber, it.LineCode, it.ItemName,
				num(it.POQuantity), grnQty, num(it.InvoiceQuantity),
				num(it.POUnitPrice), num(it.InvoiceUnitPrice),
				num(it.QuantityVariance), num(it.PriceVariance), num(it.TotalVariance),
				it.VarianceType.String(), it.Notes,
			}
			if err := writeRow(f, sheetItems, itemRow, values); err != nil {
				return nil, err
			}
			if err := styleRange(f, sheetItems, itemRow, 7, 11, amount); err != nil {
				return nil, err
			}
			itemRow++
		}
	}

	if err := w.writeSummary(f, matching.ComputeStats(matches), header, amount); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(sheetMatches, "A", "P", 16)
	_ = f.SetColWidth(sheetItems, "A", "M", 14)
	_ = f.SetColWidth(sheetSummary, "A", "B", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Writer) writeSummary(f *excelize.File, stats matching.Stats, header, amount int) error {
	rows := [][]interface{}{
		{"Generated", w.now().Format(time.RFC3339)},
		{"Status", "Count"},
	}
	for _, status := range entity.AllMatchStatuses {
		rows = append(rows, []interface{}{status.String(), stats.Count(status)})
	}
	rows = append(rows,
		[]interface{}{"Total", stats.Total()},
		[]interface{}{"Open variance", num(stats.TotalVarianceAmount)},
	)
	for i, values := range rows {
		if err := writeRow(f, sheetSummary, i+1, values); err != nil {
			return err
		}
	}
	if err := styleRange(f, sheetSummary, 2, 1, 2, header); err != nil {
		return err
	}
	return styleRange(f, sheetSummary, len(rows), 2, 2, amount)
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return err
	}
	return styleRange(f, sheet, 1, 1, len(headers), style)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleRange(f *excelize.File, sheet string, row, fromCol, toCol, style int) error {
	from, err := excelize.CoordinatesToCellName(fromCol, row)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(toCol, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, from, to, style)
}

// num converts for display only; all arithmetic happens on decimals upstream
func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
