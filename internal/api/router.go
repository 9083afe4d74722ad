package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router with all endpoints registered.
func NewRouter(s *Services) http.Handler {
	mux := http.NewServeMux()
	h := &handler{Services: s}

	// Store configuration.
	mux.HandleFunc("GET /api/settings", h.getSettings)
	mux.HandleFunc("PUT /api/settings", h.putSettings)
	mux.HandleFunc("DELETE /api/settings", h.deleteSettings)

	// Materials.
	mux.HandleFunc("GET /api/materials", h.listMaterials)
	mux.HandleFunc("POST /api/materials", h.createMaterial)
	mux.HandleFunc("PUT /api/materials/{id}", h.updateMaterial)
	mux.HandleFunc("DELETE /api/materials/{id}", h.deleteMaterial)
	mux.HandleFunc("PUT /api/materials/{id}/image", h.uploadMaterialImage)

	// Stands.
	mux.HandleFunc("GET /api/stands", h.listStands)
	mux.HandleFunc("POST /api/stands", h.createStand)
	mux.HandleFunc("GET /api/stands/lookup", h.lookupStand)
	mux.HandleFunc("GET /api/stands/{id}", h.getStand)
	mux.HandleFunc("PUT /api/stands/{id}", h.updateStand)
	mux.HandleFunc("DELETE /api/stands/{id}", h.deleteStand)
	mux.HandleFunc("PUT /api/stands/{id}/shelves/{index}", h.setShelf)
	mux.HandleFunc("GET /api/stands/{id}/qr.png", h.standQR)
	mux.HandleFunc("POST /api/stands/{id}/issue", h.issueStand)
	mux.HandleFunc("POST /api/stands/{id}/receive", h.receiveStand)

	// Responsible persons.
	mux.HandleFunc("GET /api/responsibles", h.listResponsibles)
	mux.HandleFunc("POST /api/responsibles", h.createResponsible)
	mux.HandleFunc("PUT /api/responsibles/{id}", h.updateResponsible)
	mux.HandleFunc("DELETE /api/responsibles/{id}", h.deleteResponsible)

	// Checklist.
	mux.HandleFunc("GET /api/checklist", h.listChecklist)
	mux.HandleFunc("POST /api/checklist", h.createChecklistItem)
	mux.HandleFunc("PUT /api/checklist/{id}", h.updateChecklistItem)
	mux.HandleFunc("DELETE /api/checklist/{id}", h.deleteChecklistItem)

	// Reports and the movement log.
	mux.HandleFunc("GET /api/reports", h.listReports)
	mux.HandleFunc("POST /api/reports", h.createReport)
	mux.HandleFunc("GET /api/reports/export.pdf", h.exportReportsPDF)
	mux.HandleFunc("GET /api/reports/export.xlsx", h.exportReportsXLSX)
	mux.HandleFunc("GET /api/reports/{id}", h.getReport)
	mux.HandleFunc("DELETE /api/reports/{id}", h.deleteReport)
	mux.HandleFunc("POST /api/reports/{id}/service", h.serviceReport)
	mux.HandleFunc("GET /api/transactions", h.listTransactions)
	mux.HandleFunc("GET /api/transactions/export.csv", h.exportTransactionsCSV)

	// Notices and live updates.
	mux.HandleFunc("GET /api/notices", h.listNotices)
	mux.HandleFunc("DELETE /api/notices/{id}", h.dismissNotice)
	mux.HandleFunc("GET /api/stream/{collection}", h.stream)

	if s.Blobs != nil {
		mux.Handle("GET /blobs/{path...}", s.Blobs.Handler())
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return RecoverMiddleware(mux)
}
