// Package report renders analyses into PDF documents. Composers describe each
// report as a linear list of blocks; the writer lays those blocks out with fpdf.
package report

// Block is one layout instruction in a Document.
type Block interface {
	isBlock()
}

// Title is the large heading at the top of a document or major part.
type Title struct{ Text string }

// Subtitle is a section heading.
type Subtitle struct{ Text string }

// Text is a wrapped paragraph.
type Text struct{ Text string }

// List is a bulleted list.
type List struct{ Items []string }

// Table is a grid with a header row. Widths are relative weights; nil means
// equal columns.
type Table struct {
	Headers []string
	Rows    [][]string
	Widths  []float64
}

// PageBreak starts a new page.
type PageBreak struct{}

// Space is vertical whitespace in millimetres.
type Space struct{ Height float64 }

func (Title) isBlock()     {}
func (Subtitle) isBlock()  {}
func (Text) isBlock()      {}
func (List) isBlock()      {}
func (Table) isBlock()     {}
func (PageBreak) isBlock() {}
func (Space) isBlock()     {}

// Document is a report before layout.
type Document struct {
	Title   string
	Author  string
	Subject string
	Blocks  []Block
}

// NewDocument starts an empty document with metadata.
func NewDocument(title, author, subject string) *Document {
	return &Document{Title: title, Author: author, Subject: subject}
}

// Heading appends a Title block.
func (d *Document) Heading(text string) *Document {
	d.Blocks = append(d.Blocks, Title{Text: text})
	return d
}

// Section appends a Subtitle block.
func (d *Document) Section(text string) *Document {
	d.Blocks = append(d.Blocks, Subtitle{Text: text})
	return d
}

// Paragraph appends a Text block. Empty text is kept so sparse data still
// produces the section.
func (d *Document) Paragraph(text string) *Document {
	d.Blocks = append(d.Blocks, Text{Text: text})
	return d
}

// Bullets appends a List block.
func (d *Document) Bullets(items []string) *Document {
	d.Blocks = append(d.Blocks, List{Items: items})
	return d
}

// Grid appends a Table block.
func (d *Document) Grid(headers []string, rows [][]string, widths ...float64) *Document {
	d.Blocks = append(d.Blocks, Table{Headers: headers, Rows: rows, Widths: widths})
	return d
}

// Break appends a PageBreak block.
func (d *Document) Break() *Document {
	d.Blocks = append(d.Blocks, PageBreak{})
	return d
}

// Gap appends a Space block.
func (d *Document) Gap(height float64) *Document {
	d.Blocks = append(d.Blocks, Space{Height: height})
	return d
}
