package apihttp

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alarms "alarmcast/internal/alarms/domain"
	"alarmcast/internal/auth"
	"alarmcast/internal/observability/metrics"
)

// ExportAlarmsHandler serves downloads of the caller's permitted slice
// of the active alarm set.
type ExportAlarmsHandler struct {
	snapshots SnapshotProvider
	resolver  PermissionSource
}

// NewExportAlarmsHandler constructs an ExportAlarmsHandler.
func NewExportAlarmsHandler(snapshots SnapshotProvider, resolver PermissionSource) *ExportAlarmsHandler {
	return &ExportAlarmsHandler{snapshots: snapshots, resolver: resolver}
}

// ServeHTTP handles GET /api/v1/exports/alarms.{format}.
func (h *ExportAlarmsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.snapshots == nil || h.resolver == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	format := chi.URLParam(r, "format")
	switch format {
	case "csv", "xlsx", "pdf":
	default:
		http.Error(w, "format must be csv, xlsx or pdf", http.StatusBadRequest)
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	permitted, err := h.resolver.PermittedItems(r.Context(), userID)
	if err != nil {
		http.Error(w, "resolve permissions error", http.StatusInternalServerError)
		return
	}

	snap, ok := h.snapshots.Latest()
	if !ok {
		http.Error(w, "no alarm snapshot yet", http.StatusServiceUnavailable)
		return
	}
	visible := snap.FilterByItems(permitted)

	started := time.Now()
	var (
		payload     []byte
		contentType string
	)
	switch format {
	case "csv":
		payload, err = BuildAlarmsCSV(visible)
		contentType = "text/csv; charset=utf-8"
	case "xlsx":
		payload, err = BuildAlarmsXLSX(visible, snap.TakenAt)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		payload, err = BuildAlarmsPDF(visible, snap.TakenAt)
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, "render export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="active-alarms.`+format+`"`)
	_, _ = w.Write(payload)
}

// BuildAlarmsCSV renders the alarm list as CSV.
func BuildAlarmsCSV(visible []alarms.ActiveAlarm) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{
		"alarm_id",
		"item_id",
		"priority",
		"raised_at",
	})
	for _, alarm := range visible {
		_ = writer.Write([]string{
			alarm.ID,
			alarm.ItemID,
			strconv.Itoa(alarm.Priority),
			alarm.RaisedAt.UTC().Format(timeLayout),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlarmsXLSX renders a minimal XLSX for the alarm list.
func BuildAlarmsXLSX(visible []alarms.ActiveAlarm, takenAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	alarmsSheet := "alarms"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(alarmsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Active Alarms")
	_ = f.SetCellValue(summarySheet, "A3", "Snapshot Taken")
	_ = f.SetCellValue(summarySheet, "B3", takenAt.UTC().Format(timeLayout))
	_ = f.SetCellValue(summarySheet, "A4", "Alarm Count")
	_ = f.SetCellValue(summarySheet, "B4", len(visible))

	_ = f.SetCellValue(alarmsSheet, "A1", "Alarm ID")
	_ = f.SetCellValue(alarmsSheet, "B1", "Item ID")
	_ = f.SetCellValue(alarmsSheet, "C1", "Priority")
	_ = f.SetCellValue(alarmsSheet, "D1", "Raised At")
	for i, alarm := range visible {
		row := i + 2
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("A%d", row), alarm.ID)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("B%d", row), alarm.ItemID)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("C%d", row), alarm.Priority)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("D%d", row), alarm.RaisedAt.UTC().Format(timeLayout))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlarmsPDF renders a minimal PDF for the alarm list.
func BuildAlarmsPDF(visible []alarms.ActiveAlarm, takenAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Active Alarms")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Snapshot Taken: %s", takenAt.UTC().Format(timeLayout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Alarm Count: %d", len(visible)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Alarm ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Item ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Priority", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Raised At", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, alarm := range visible {
		pdf.CellFormat(50, 6, alarm.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, alarm.ItemID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, strconv.Itoa(alarm.Priority), "1", 0, "R", false, 0, "")
		pdf.CellFormat(55, 6, alarm.RaisedAt.UTC().Format(timeLayout), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
