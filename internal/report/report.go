// Package report exports a submarine's recorded dive history as CSV,
// JSON or a customer-facing PDF.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/oceanlab/shipgate/internal/store"
)

// MeasurementJSON is the JSON representation of a measurement for export.
type MeasurementJSON struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Timestamp string `json:"timestamp"`
}

// ExportCSV writes a submarine's ground measurements as CSV to w.
// Headers: x,y,z,timestamp
func ExportCSV(w io.Writer, s *store.Store, subID string) error {
	measurements, err := s.QueryMeasurements(subID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y", "z", "timestamp"}); err != nil {
		return err
	}

	for _, m := range measurements {
		record := []string{
			strconv.Itoa(m.Point.X),
			strconv.Itoa(m.Point.Y),
			strconv.Itoa(m.Point.Z),
			m.Timestamp.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportJSON writes a submarine's ground measurements as a JSON array to w.
func ExportJSON(w io.Writer, s *store.Store, subID string) error {
	measurements, err := s.QueryMeasurements(subID)
	if err != nil {
		return err
	}

	records := make([]MeasurementJSON, len(measurements))
	for i, m := range measurements {
		records[i] = MeasurementJSON{
			X:         m.Point.X,
			Y:         m.Point.Y,
			Z:         m.Point.Z,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// GeneratePDF creates a dive report PDF for the given submarine.
func GeneratePDF(w io.Writer, st *store.Store, subID string) error {
	sub, err := st.GetSubmarine(subID)
	if err != nil {
		return fmt.Errorf("load submarine: %w", err)
	}
	if sub == nil {
		return fmt.Errorf("submarine not found")
	}

	measurements, err := st.QueryMeasurements(subID)
	if err != nil {
		return fmt.Errorf("load measurements: %w", err)
	}
	crashes, err := st.QueryCrashes(subID)
	if err != nil {
		return fmt.Errorf("load crashes: %w", err)
	}
	pic, err := st.LatestPicture(subID)
	if err != nil {
		return fmt.Errorf("load picture: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "Submarine Dive Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// Submarine info
	pdf.SetFont("Arial", "", 10)
	info := []struct{ label, value string }{
		{"Submarine", sub.ID},
		{"Mother Ship", sub.ShipID},
		{"Status", sub.Status},
		{"First Seen", sub.FirstSeen.Format(time.RFC3339)},
		{"Last Seen", sub.LastSeen.Format(time.RFC3339)},
		{"Measurement Points", strconv.Itoa(len(measurements))},
	}
	if pic != nil {
		info = append(info, struct{ label, value string }{"Latest Picture", pic.Timestamp.Format(time.RFC3339)})
	}
	for _, item := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Crash history
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Crash History", "", 1, "L", false, 0, "")
	pdf.Ln(2)
	if len(crashes) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No crashes recorded.", "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(70, 7, "Message", "1", 0, "L", true, 0, "")
		pdf.CellFormat(30, 7, "Sector", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Sunk Position", "1", 0, "C", true, 0, "")
		pdf.CellFormat(0, 7, "Time", "1", 1, "L", true, 0, "")

		pdf.SetFont("Arial", "", 9)
		for _, c := range crashes {
			sector := "-"
			if c.Sector != nil {
				sector = c.Sector.String()
			}
			sunk := "-"
			if c.SunkPos != nil {
				sunk = c.SunkPos.String()
			}
			pdf.CellFormat(70, 7, truncate(c.Message, 40), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 7, sector, "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 7, sunk, "1", 0, "C", false, 0, "")
			pdf.CellFormat(0, 7, c.Timestamp.Format("2006-01-02 15:04"), "1", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(6)

	// Ground survey
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Ground Survey", "", 1, "L", false, 0, "")
	pdf.Ln(2)
	if len(measurements) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No measurements recorded.", "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(30, 6, "X", "1", 0, "R", true, 0, "")
		pdf.CellFormat(30, 6, "Y", "1", 0, "R", true, 0, "")
		pdf.CellFormat(30, 6, "Z", "1", 0, "R", true, 0, "")
		pdf.CellFormat(0, 6, "Time", "1", 1, "L", true, 0, "")

		pdf.SetFont("Arial", "", 8)
		for _, m := range measurements {
			pdf.CellFormat(30, 6, strconv.Itoa(m.Point.X), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, strconv.Itoa(m.Point.Y), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, strconv.Itoa(m.Point.Z), "1", 0, "R", false, 0, "")
			pdf.CellFormat(0, 6, m.Timestamp.Format("15:04:05"), "1", 1, "L", false, 0, "")
		}
	}

	// Latest camera picture, embedded when the file is still around.
	if pic != nil && pic.FilePath != "" && fileExists(pic.FilePath) {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Latest Camera Picture", "", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.ImageOptions(pic.FilePath, 15, pdf.GetY(), 120, 0, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	}

	return pdf.Output(w)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
