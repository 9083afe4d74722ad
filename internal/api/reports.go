package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/stojala/internal/export"
	"github.com/erazemk/stojala/internal/inventory"
	"github.com/erazemk/stojala/internal/model"
)

// filterReports applies the standId and open query parameters.
func filterReports(r *http.Request, reports []model.Report) []model.Report {
	standID := r.URL.Query().Get("standId")
	open := r.URL.Query().Get("open") == "true"
	if standID == "" && !open {
		return reports
	}
	kept := reports[:0]
	for _, rep := range reports {
		if standID != "" && rep.StandID != standID {
			continue
		}
		if open && (rep.IsServiced || !rep.HasIssues()) {
			continue
		}
		kept = append(kept, rep)
	}
	return kept
}

// listReports handles GET /api/reports.
func (h *handler) listReports(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	state := h.Catalog.Reports.State()
	state.Items = filterReports(r, state.Items)
	jsonResponse(w, http.StatusOK, newList(state))
}

// getReport handles GET /api/reports/{id}.
func (h *handler) getReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Catalog.Reports.Find(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "report not found")
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// createReport handles POST /api/reports.
func (h *handler) createReport(w http.ResponseWriter, r *http.Request) {
	var req inventory.ReportInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.Catalog.CreateReport(r.Context(), req)
	if err != nil {
		h.fail(w, "save report", err)
		return
	}
	h.ok(w, http.StatusCreated, "Report saved", map[string]string{"id": id})
}

// serviceReport handles POST /api/reports/{id}/service.
func (h *handler) serviceReport(w http.ResponseWriter, r *http.Request) {
	var req inventory.ServiceInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := h.Catalog.ServiceReport(r.Context(), id, req); err != nil {
		h.fail(w, "mark report as serviced", err)
		return
	}
	h.ok(w, http.StatusOK, "Report marked as serviced", map[string]string{"id": id})
}

// deleteReport handles DELETE /api/reports/{id}.
func (h *handler) deleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteReport(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete report", err)
		return
	}
	h.ok(w, http.StatusOK, "Report deleted", map[string]string{"message": "report deleted"})
}

// exportReportsPDF handles GET /api/reports/export.pdf.
func (h *handler) exportReportsPDF(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	data, err := export.ReportsPDF(filterReports(r, h.Catalog.Reports.Items()))
	if err != nil {
		readFail(w, err)
		return
	}
	writeFile(w, "application/pdf", "reports-"+time.Now().Format("20060102")+".pdf", data)
}

// exportReportsXLSX handles GET /api/reports/export.xlsx.
func (h *handler) exportReportsXLSX(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	data, err := export.ReportsXLSX(filterReports(r, h.Catalog.Reports.Items()))
	if err != nil {
		readFail(w, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"reports-"+time.Now().Format("20060102")+".xlsx", data)
}

// listTransactions handles GET /api/transactions.
func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	state := h.Catalog.Transactions.State()
	if standID := r.URL.Query().Get("standId"); standID != "" {
		kept := state.Items[:0]
		for _, t := range state.Items {
			if t.StandID == standID {
				kept = append(kept, t)
			}
		}
		state.Items = kept
	}
	jsonResponse(w, http.StatusOK, newList(state))
}

// exportTransactionsCSV handles GET /api/transactions/export.csv.
func (h *handler) exportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	data, err := export.TransactionsCSV(h.Catalog.Transactions.Items())
	if err != nil {
		readFail(w, err)
		return
	}
	writeFile(w, "text/csv; charset=utf-8", "transactions-"+time.Now().Format("20060102")+".csv", data)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition("attachment", filename))
	if _, err := w.Write(data); err != nil {
		slog.Warn("writing export", "file", filename, "error", err)
	}
}
