package router

import (
	"net/http"

	"tendermarket/internal/controller"
)

func NewRouter(c *controller.Controller) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", c.Ping)
	mux.HandleFunc("GET /api/tenders", c.GetTenders)
	mux.HandleFunc("POST /api/tenders/new", c.NewTender)
	mux.HandleFunc("GET /api/tenders/my", c.MyTenders)
	mux.HandleFunc("GET /api/tenders/{tenderId}", c.GetTender)
	mux.HandleFunc("PATCH /api/tenders/{tenderId}/edit", c.EditTender)
	mux.HandleFunc("DELETE /api/tenders/{tenderId}", c.DeleteTender)
	mux.HandleFunc("PUT /api/tenders/{tenderId}/publish", c.PublishTender)
	mux.HandleFunc("PUT /api/tenders/{tenderId}/reveal", c.RevealTender)
	mux.HandleFunc("PUT /api/tenders/{tenderId}/moderate", c.ModerateTender)
	mux.HandleFunc("GET /api/tenders/{tenderId}/audit", c.TenderAudit)
	mux.HandleFunc("POST /api/proposals/new", c.NewProposal)
	mux.HandleFunc("GET /api/proposals/{tenderId}/list", c.TenderProposals)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("page not found"))
	})

	return mux
}
