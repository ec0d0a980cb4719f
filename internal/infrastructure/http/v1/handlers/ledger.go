package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/report"
)

// MaxExportRows caps one XLSX export.
const MaxExportRows = 100_000

// LedgerHandler serves the stock ledger.
type LedgerHandler struct {
	*BaseHandler
	ledger *ledger.Service
	engine *posting.Engine
}

func NewLedgerHandler(base *BaseHandler, svc *ledger.Service, engine *posting.Engine) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, ledger: svc, engine: engine}
}

func (h *LedgerHandler) filter(c *gin.Context) (ledger.Filter, bool) {
	var q dto.LedgerQuery
	if !h.BindQuery(c, &q) {
		return ledger.Filter{}, false
	}
	f, err := q.Filter()
	if err != nil {
		h.Error(c, err)
		return ledger.Filter{}, false
	}
	return f, true
}

// List handles GET /ledger
func (h *LedgerHandler) List(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	page, err := h.ledger.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{
		Items:      page.Items,
		TotalCount: page.TotalCount,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
}

// Export handles GET /ledger/export. Paging parameters are ignored; every
// matching entry up to MaxExportRows is written.
func (h *LedgerHandler) Export(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	f.Limit = ledger.MaxLimit
	f.Offset = 0
	var entries []ledger.StockLedgerEntry
	for len(entries) < MaxExportRows {
		page, err := h.ledger.List(ctx, f)
		if err != nil {
			h.Error(c, err)
			return
		}
		entries = append(entries, page.Items...)
		if len(page.Items) < f.Limit {
			break
		}
		f.Offset += len(page.Items)
	}

	name := fmt.Sprintf("stock-ledger-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", report.ContentTypeXLSX)
	c.Header("Content-Disposition", "attachment; filename="+name)
	if err := report.WriteLedgerXLSX(c.Writer, entries); err != nil {
		h.Error(c, err)
	}
}

// UpdateMetadata handles PATCH /ledger/:id
func (h *LedgerHandler) UpdateMetadata(c *gin.Context) {
	entryID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req ledger.MetadataUpdate
	if !h.BindJSON(c, &req) {
		return
	}
	e, err := h.ledger.UpdateMetadata(c.Request.Context(), entryID, req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, e)
}

// Cancel handles POST /ledger/:id/cancel
func (h *LedgerHandler) Cancel(c *gin.Context) {
	entryID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.CancelEntryRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	by := req.CancelledBy
	if by == "" {
		by = h.ActorID(c)
	}
	res, err := h.engine.CancelEntry(c.Request.Context(), entryID, by, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
