package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	marginMM     = 20.0
	bodyFontSize = 11.0
	lineHeight   = 6.0
	fontFamily   = "Helvetica"
	emptyListMsg = "None identified."
	emptyRowsMsg = "No data available."
)

// Write lays out doc on A4 pages and returns the PDF bytes. It performs no I/O.
func Write(doc *Document, created time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.SetTitle(doc.Title, true)
	pdf.SetAuthor(doc.Author, true)
	pdf.SetSubject(doc.Subject, true)
	pdf.SetCreator("sitereport", true)
	if !created.IsZero() {
		pdf.SetCreationDate(created)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, _ := pdf.GetPageSize()
	contentWidth := pageWidth - 2*marginMM

	pdf.AddPage()
	for _, block := range doc.Blocks {
		switch b := block.(type) {
		case Title:
			pdf.SetFont(fontFamily, "B", 20)
			pdf.SetTextColor(20, 40, 80)
			pdf.MultiCell(0, 10, tr(b.Text), "", "L", false)
			pdf.Ln(2)
		case Subtitle:
			pdf.Ln(2)
			pdf.SetFont(fontFamily, "B", 14)
			pdf.SetTextColor(40, 60, 110)
			pdf.MultiCell(0, 8, tr(b.Text), "", "L", false)
			pdf.Ln(1)
		case Text:
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			setBody(pdf)
			pdf.MultiCell(0, lineHeight, tr(b.Text), "", "L", false)
			pdf.Ln(2)
		case List:
			setBody(pdf)
			if len(b.Items) == 0 {
				pdf.SetTextColor(120, 120, 120)
				pdf.MultiCell(0, lineHeight, tr(emptyListMsg), "", "L", false)
				pdf.Ln(2)
				continue
			}
			for _, item := range b.Items {
				left, _, _, _ := pdf.GetMargins()
				pdf.SetX(left)
				pdf.CellFormat(6, lineHeight, tr("-"), "", 0, "L", false, 0, "")
				pdf.MultiCell(contentWidth-6, lineHeight, tr(item), "", "L", false)
			}
			pdf.Ln(2)
		case Table:
			writeTable(pdf, tr, b, contentWidth)
		case PageBreak:
			pdf.AddPage()
		case Space:
			pdf.Ln(b.Height)
		default:
			return nil, fmt.Errorf("unsupported block %T", block)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func setBody(pdf *fpdf.Fpdf) {
	pdf.SetFont(fontFamily, "", bodyFontSize)
	pdf.SetTextColor(30, 30, 30)
}

func writeTable(pdf *fpdf.Fpdf, tr func(string) string, t Table, contentWidth float64) {
	cols := len(t.Headers)
	if cols == 0 {
		return
	}
	widths := columnWidths(t.Widths, cols, contentWidth)

	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetFillColor(225, 230, 240)
	pdf.SetTextColor(20, 20, 20)
	for i, h := range t.Headers {
		pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(fontFamily, "", 10)
	if len(t.Rows) == 0 {
		pdf.CellFormat(contentWidth, 7, tr(emptyRowsMsg), "1", 1, "L", false, 0, "")
		pdf.Ln(2)
		return
	}
	for _, row := range t.Rows {
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(widths[i], 7, truncate(pdf, tr(cell), widths[i]-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(2)
}

func columnWidths(weights []float64, cols int, total float64) []float64 {
	widths := make([]float64, cols)
	sum := 0.0
	for i := 0; i < cols; i++ {
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		widths[i] = w
		sum += w
	}
	for i := range widths {
		widths[i] = widths[i] / sum * total
	}
	return widths
}

// truncate shortens s with an ellipsis so it fits in width at the current font.
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
