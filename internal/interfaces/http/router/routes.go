package router

import (
	"github.com/casaviva/backoffice/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers bundles the HTTP handlers of the back office API.
type Handlers struct {
	System        *handler.SystemHandler
	Houses        *handler.HouseHandler
	Clients       *handler.ClientHandler
	Payments      *handler.PaymentHandler
	Renunciations *handler.RenunciationHandler
	Evidence      *handler.EvidenceHandler
}

// Groups returns the API route table, relative to /api/<version>. A zero
// Handlers still lists every route.
func (h Handlers) Groups() []Group {
	return []Group{
		{Prefix: "/system", Routes: []Route{
			get("/info", h.System.GetSystemInfo),
		}},
		{Prefix: "/houses", Routes: []Route{
			post("", h.Houses.Create),
			get("", h.Houses.List),
			get("/:id", h.Houses.Get),
			put("/:id/discount", h.Houses.ApplyDiscount),
			post("/:id/waiver", h.Houses.WaiveBalance),
			get("/:id/verification", h.Houses.Verify),
		}},
		{Prefix: "/clients", Routes: []Route{
			post("", h.Clients.Register),
			get("", h.Clients.List),
			get("/:id", h.Clients.Get),
			get("/:id/process", h.Clients.GetProcess),
			post("/:id/process/evaluate", h.Clients.EvaluateDraft),
			put("/:id/process", h.Clients.SaveProcess),
			put("/:id/plan", h.Clients.UpdatePlan),
			get("/:id/payments", h.Clients.ListPayments),
			get("/:id/audit", h.Clients.ListAudit),
			get("/:id/renunciations", h.Clients.ListRenunciations),
			post("/:id/renunciations", h.Clients.Renounce),
		}},
		{Prefix: "/payments", Routes: []Route{
			post("", h.Payments.Register),
			get("/:id", h.Payments.Get),
			patch("/:id", h.Payments.Edit),
			post("/:id/void", h.Payments.Void),
			post("/:id/reverse-void", h.Payments.ReverseVoid),
		}},
		{Prefix: "/renunciations", Routes: []Route{
			get("/:id", h.Renunciations.Get),
			post("/:id/refund", h.Renunciations.CloseRefund),
			post("/:id/reverse", h.Renunciations.Reverse),
		}},
		{Prefix: "/evidence", Routes: []Route{
			post("/upload-url", h.Evidence.CreateUploadURL),
		}},
	}
}

// Mount registers the health probe at the engine root and the API under
// /api/<version>, returning the API endpoints it mounted.
func Mount(engine *gin.Engine, h Handlers, opts ...Option) []Endpoint {
	o := mountOptions{version: DefaultAPIVersion}
	for _, opt := range opts {
		opt(&o)
	}

	engine.GET("/health", h.System.Health)
	return Bind(engine.Group("/api/"+o.version), h.Groups()...)
}
