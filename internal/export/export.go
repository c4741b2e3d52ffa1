// Package export renders a finished analysis as a PDF report.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"vergabeflow/internal/logging"
	"vergabeflow/internal/types"
)

// ErrRender is returned when the PDF could not be produced.
var ErrRender = errors.New("pdf rendering failed")

// FileName is the name every exported report is saved under.
const FileName = "Vergabebausteine-Bedarfsanalyse.pdf"

// Layout policy, in millimetres and points.
const (
	Margin     = 20.0
	TextWidth  = 170.0
	LineHeight = 7.0
	BreakAt    = 250.0
	// PageBottom is where a block running past BreakAt is cut.
	PageBottom = 277.0

	TitleSize   = 18.0
	HeadingSize = 14.0
	BodySize    = 12.0

	fontFamily = "Helvetica"
)

// Fixed texts of the report.
const (
	TitleText        = "Vergabebausteine - Bedarfsanalyse"
	ProjectHeading   = "Projektinformation"
	TypePrefix       = "Beschaffungstyp: "
	DescHeading      = "Projektbeschreibung:"
	QAHeading        = "Fragen und Antworten:"
	FinalHeading     = "Generierte Bedarfsbeschreibung:"
	QuestionPrefix   = "Frage %d: "
	AnswerPrefix     = "Antwort: "
	NoAnswer         = "Keine Antwort"
	MsgExportFailed  = "Fehler beim Erstellen des PDFs"
	MsgExportCreated = "PDF wurde erstellt"
)

// Report is the content of one export.
type Report struct {
	AnalysisID       string
	ProcurementType  string
	Description      string
	Pairs            []types.QAPair
	FinalDescription string
	CreatedAt        time.Time
}

// NewReport joins questions and answers into a Report.
func NewReport(procurementType, description string, questions []types.Question, answers []types.Answer, final string) Report {
	return Report{
		ProcurementType:  procurementType,
		Description:      description,
		Pairs:            types.Pair(questions, answers),
		FinalDescription: final,
	}
}

// Kind classifies a laid-out line.
type Kind int

const (
	KindTitle Kind = iota
	KindHeading
	KindBody
	KindQuestion
	KindAnswer
)

// Line is one line of text placed on a page.
type Line struct {
	Kind Kind
	Text string
	X, Y float64
	Size float64
	Bold bool
}

// Page is the set of lines on one page.
type Page struct {
	Number int
	Lines  []Line
}

// Document is a rendered report: the layout and the PDF bytes.
type Document struct {
	Pages []Page
	PDF   []byte
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// Lines returns every line in page order.
func (d *Document) Lines() []Line {
	var out []Line
	for _, p := range d.Pages {
		out = append(out, p.Lines...)
	}
	return out
}

// Text returns the text of every line of the given kinds, joined by newlines.
func (d *Document) Text(kinds ...Kind) string {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var sb strings.Builder
	for _, l := range d.Lines() {
		if len(kinds) == 0 || want[l.Kind] {
			sb.WriteString(l.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// WriteFile writes the PDF to path, creating parent directories.
func (d *Document) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	if err := os.WriteFile(path, d.PDF, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	logging.Get(logging.CategoryExport).Infow("report written", "path", path, "bytes", len(d.PDF))
	return nil
}

// DefaultPath returns dir joined with FileName.
func DefaultPath(dir string) string {
	return filepath.Join(dir, FileName)
}

// Render lays out r on A4 pages and produces the PDF.
func Render(r Report) (doc *Document, err error) {
	timer := logging.StartTimer(logging.CategoryExport, "Render")
	defer timer.Stop()

	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrRender, p)
		}
	}()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(Margin, Margin, Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(TitleText, true)
	pdf.SetCreator("vergabe", true)
	if !r.CreatedAt.IsZero() {
		pdf.SetCreationDate(r.CreatedAt)
	}

	w := &writer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	w.layout(r)

	if pdf.Err() {
		return nil, fmt.Errorf("%w: %v", ErrRender, pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	logging.Get(logging.CategoryExport).Debugw("report rendered", "pages", len(w.pages), "pairs", len(r.Pairs), "bytes", buf.Len())
	return &Document{Pages: w.pages, PDF: buf.Bytes()}, nil
}

type writer struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	pages []Page
	y     float64
}

func (w *writer) layout(r Report) {
	w.newPage()

	w.put(KindTitle, TitleText, 20)
	w.put(KindHeading, ProjectHeading, 35)
	w.put(KindBody, TypePrefix+r.ProcurementType, 45)
	w.put(KindHeading, DescHeading, 60)

	w.y = 70
	w.block(KindBody, r.Description)

	// the heading moves with the first pair
	if w.y+20 > BreakAt {
		w.newPage()
		w.y = Margin
	}
	w.put(KindHeading, QAHeading, w.y+10)
	w.y += 20

	for i, p := range r.Pairs {
		if w.y > BreakAt {
			w.newPage()
			w.y = Margin
		}
		answer := p.Answer
		if !p.Answered {
			answer = NoAnswer
		}
		w.block(KindQuestion, fmt.Sprintf(QuestionPrefix, i+1)+p.Question)
		w.block(KindAnswer, AnswerPrefix+answer)
		w.y += 5
	}

	w.newPage()
	w.put(KindHeading, FinalHeading, 20)
	w.y = 30
	w.block(KindBody, r.FinalDescription)
}

func (w *writer) newPage() {
	w.pdf.AddPage()
	w.pages = append(w.pages, Page{Number: len(w.pages) + 1})
}

func style(kind Kind) (size float64, bold bool) {
	switch kind {
	case KindTitle:
		return TitleSize, false
	case KindHeading:
		return HeadingSize, false
	case KindQuestion:
		return BodySize, true
	default:
		return BodySize, false
	}
}

func (w *writer) setFont(kind Kind) (float64, bool) {
	size, bold := style(kind)
	fontStyle := ""
	if bold {
		fontStyle = "B"
	}
	w.pdf.SetFont(fontFamily, fontStyle, size)
	return size, bold
}

// put writes a single line at y.
func (w *writer) put(kind Kind, text string, y float64) {
	size, bold := w.setFont(kind)
	w.pdf.Text(Margin, y, w.tr(text))
	page := &w.pages[len(w.pages)-1]
	page.Lines = append(page.Lines, Line{Kind: kind, Text: text, X: Margin, Y: y, Size: size, Bold: bold})
}

// block wraps text to TextWidth and writes it from the cursor, one
// LineHeight per line, continuing on a new page past PageBottom.
func (w *writer) block(kind Kind, text string) {
	w.setFont(kind)
	for _, line := range w.wrap(text) {
		if w.y > PageBottom {
			w.newPage()
			w.y = Margin
		}
		w.put(kind, line, w.y)
		w.y += LineHeight
	}
}

func (w *writer) width(s string) float64 {
	return w.pdf.GetStringWidth(w.tr(s))
}

// wrap breaks text into lines no wider than TextWidth. Explicit newlines are
// kept; words longer than a line are split.
func (w *writer) wrap(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			for w.width(word) > TextWidth {
				head, tail := w.splitWord(word)
				if current != "" {
					lines = append(lines, current)
					current = ""
				}
				lines = append(lines, head)
				word = tail
			}
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if w.width(candidate) <= TextWidth {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = word
		}
		lines = append(lines, current)
	}
	return lines
}

// splitWord returns the longest prefix of word that fits on a line and the rest.
func (w *writer) splitWord(word string) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && w.width(string(runes[:n+1])) <= TextWidth {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}
