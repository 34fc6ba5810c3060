// Package chronicle renders a finished game as a printable PDF: the path
// the party took through the story, what each player did, and how every
// character ended up.
package chronicle

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"coopadventure/internal/session"
)

const (
	pageW     = 595
	pageH     = 842
	margin    = 40
	stopSize  = 40.0
	pathStep  = 110.0
	perRow    = 4
	fontSize  = 9
	titleSize = 18
	labelSize = 7
	lineH     = 12
)

// Generate returns PDF bytes for the game described by sum.
func Generate(sum session.Summary) ([]byte, error) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetHeaderFunc(func() {
		pdf.SetFillColor(245, 235, 210)
		pdf.Rect(0, 0, pageW, pageH, "F")
		drawWavyBorder(pdf)
	})
	pdf.AddPage()

	pdf.SetTextColor(80, 50, 30)
	pdf.SetFont("Helvetica", "B", titleSize)
	title := sum.Title
	if title == "" {
		title = "Untitled story"
	}
	pdf.SetXY(margin+10, margin+12)
	pdf.CellFormat(pageW-2*margin-20, 20, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "I", fontSize)
	pdf.SetX(margin + 10)
	sub := "Chronicle of game " + sum.ID
	if !sum.Started.IsZero() {
		sub += ", begun " + sum.Started.Format("2006-01-02 15:04")
	}
	pdf.CellFormat(pageW-2*margin-20, lineH, tr(sub), "", 1, "C", false, 0, "")

	y := drawPath(pdf, tr, sum.Visited(), margin+70)

	pdf.SetY(y + 10)
	section(pdf, tr, "Journal")
	for _, e := range sum.Entries {
		if e.Kind == session.EntryNode {
			continue
		}
		pdf.SetX(margin + 14)
		pdf.MultiCell(pageW-2*margin-28, lineH, tr(describe(e)), "", "L", false)
	}

	section(pdf, tr, "The party")
	for _, p := range sum.Players {
		pdf.SetFont("Helvetica", "B", fontSize)
		pdf.SetX(margin + 14)
		pdf.CellFormat(0, lineH, tr(p.ID), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", fontSize)
		pdf.SetX(margin + 24)
		pdf.MultiCell(pageW-2*margin-38, lineH, tr(statLine(p)), "", "L", false)
	}

	section(pdf, tr, "Outcome")
	pdf.SetX(margin + 14)
	pdf.MultiCell(pageW-2*margin-28, lineH, tr(sum.Reason), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Writer stores chronicles as files under Dir.
type Writer struct {
	Dir string
}

// Write renders sum and saves it as chronicle-<id>.pdf. It returns the
// file path.
func (w Writer) Write(sum session.Summary) (string, error) {
	if w.Dir == "" {
		return "", errors.New("chronicle: directory is required")
	}
	b, err := Generate(sum)
	if err != nil {
		return "", fmt.Errorf("chronicle: render: %w", err)
	}
	if err := os.MkdirAll(w.Dir, 0o750); err != nil {
		return "", fmt.Errorf("chronicle: %w", err)
	}
	path := filepath.Join(w.Dir, "chronicle-"+sum.ID+".pdf")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("chronicle: %w", err)
	}
	return path, nil
}

func section(pdf *gofpdf.Fpdf, tr func(string) string, name string) {
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", fontSize+3)
	pdf.SetX(margin + 10)
	pdf.CellFormat(0, lineH+4, tr(name), "B", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", fontSize)
}

func describe(e session.Entry) string {
	at := ""
	if !e.At.IsZero() {
		at = e.At.Format("15:04:05") + "  "
	}
	switch e.Kind {
	case session.EntryAction:
		return fmt.Sprintf("%s%s chose '%s' at %s", at, e.Actor, e.Text, e.NodeID)
	case session.EntryVote:
		return fmt.Sprintf("%sVote at %s: %s", at, e.NodeID, e.Text)
	case session.EntryEnd:
		return fmt.Sprintf("%sThe game ended: %s", at, e.Text)
	}
	return at + e.Text
}

func statLine(p session.PlayerSummary) string {
	keys := make([]string, 0, len(p.Stats))
	for k := range p.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, p.Stats[k])
	}
	stats := strings.Join(parts, ", ")
	if stats == "" {
		stats = "no stats"
	}
	inv := strings.Join(p.Inventory, ", ")
	if inv == "" {
		inv = "empty-handed"
	}
	return "Stats: " + stats + ". Carrying: " + inv + "."
}

// drawPath lays the visited nodes out as a winding dashed trail starting
// at top. It returns the y just below the trail.
func drawPath(pdf *gofpdf.Fpdf, tr func(string) string, visited []string, top float64) float64 {
	if len(visited) == 0 {
		return top
	}
	rows := (len(visited) + perRow - 1) / perRow
	maxRows := int((pageH - top - 2*margin) / pathStep)
	if rows > maxRows {
		// Keep the trail on the first page; the journal still lists every step.
		visited = visited[len(visited)-maxRows*perRow:]
		rows = maxRows
	}
	x0 := float64(margin) + 70
	pos := make([][2]float64, len(visited))
	for i := range visited {
		row, col := i/perRow, i%perRow
		if row%2 == 1 {
			col = perRow - 1 - col
		}
		pos[i] = [2]float64{x0 + float64(col)*pathStep, top + stopSize/2 + float64(row)*pathStep}
	}

	pdf.SetDrawColor(180, 40, 40)
	pdf.SetLineWidth(2)
	pdf.SetDashPattern([]float64{10, 6}, 0)
	for i := 0; i+1 < len(pos); i++ {
		pdf.Line(pos[i][0], pos[i][1], pos[i+1][0], pos[i+1][1])
	}
	pdf.SetDashPattern([]float64{}, 0)

	for i, id := range visited {
		x, y := pos[i][0], pos[i][1]
		last := i == len(visited)-1
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(1.2)
		pdf.SetFillColor(250, 244, 228)
		pdf.Circle(x, y, stopSize/2, "FD")
		if last {
			pdf.SetDrawColor(180, 40, 40)
			pdf.Line(x-8, y-8, x+8, y+8)
			pdf.Line(x-8, y+8, x+8, y-8)
		}
		pdf.SetFont("Helvetica", "B", labelSize)
		pdf.SetTextColor(40, 25, 15)
		pdf.SetXY(x-stopSize/2-4, y-5)
		pdf.CellFormat(stopSize+8, 10, fmt.Sprintf("%d", i+1), "", 0, "C", false, 0, "")

		label := strings.ToUpper(strings.ReplaceAll(id, "_", " "))
		if len(label) > 20 {
			label = label[:17] + "..."
		}
		pdf.SetXY(x-pathStep/2+4, y+stopSize/2+4)
		pdf.CellFormat(pathStep-8, 10, tr(label), "", 0, "C", false, 0, "")
	}
	pdf.SetLineWidth(1)
	pdf.SetDrawColor(80, 50, 30)
	pdf.SetTextColor(80, 50, 30)
	return top + float64(rows)*pathStep
}

// drawWavyBorder draws a tattered black border around the page.
func drawWavyBorder(pdf *gofpdf.Fpdf) {
	pts := wavyRectPoints(margin/2, margin/2, pageW-margin, pageH-margin, 14, 3)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(2)
	pdf.Polygon(pts, "D")
	pdf.SetLineWidth(1)
	pdf.SetDrawColor(80, 50, 30)
}

// wavyRectPoints returns polygon points for a rectangle with a sinusoidal
// wobble on each side.
func wavyRectPoints(x, y, w, h float64, steps int, amp float64) []gofpdf.PointType {
	pts := make([]gofpdf.PointType, 0, steps*4+1)
	edge := func(fx, fy func(t float64) float64, phaseX, phaseY float64, from int) {
		for i := from; i <= steps; i++ {
			t := float64(i) / float64(steps)
			pts = append(pts, gofpdf.PointType{
				X: fx(t) + amp*math.Sin(float64(i)*phaseX),
				Y: fy(t) + amp*math.Cos(float64(i)*phaseY),
			})
		}
	}
	edge(func(t float64) float64 { return x + t*w }, func(float64) float64 { return y }, 0.7, 0.5, 0)
	edge(func(float64) float64 { return x + w }, func(t float64) float64 { return y + t*h }, 0.6, 0.4, 1)
	edge(func(t float64) float64 { return x + w - t*w }, func(float64) float64 { return y + h }, 0.8, 0.3, 1)
	edge(func(float64) float64 { return x }, func(t float64) float64 { return y + h - t*h }, 0.5, 0.6, 1)
	return pts
}
