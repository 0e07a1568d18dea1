package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mugisham37/product-management-interview-project/internal/logging"
	"github.com/mugisham37/product-management-interview-project/internal/metrics"
	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
	"github.com/mugisham37/product-management-interview-project/internal/services"
)

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type ProductHandler struct {
	svc     *services.ProductService
	metrics *metrics.Metrics
	log     *logging.Logger
}

func NewProductHandler(svc *services.ProductService, m *metrics.Metrics, log *logging.Logger) *ProductHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &ProductHandler{svc: svc, metrics: m, log: log}
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var body models.ProductFields
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid json body")
		return
	}
	p, err := h.svc.Create(c.Request.Context(), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: p})
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: products})
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: p})
}

// GetVersion returns the full record; clients read revision and updatedAt
// from it before a versioned write.
func (h *ProductHandler) GetVersion(c *gin.Context) {
	h.GetProduct(c)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	var body models.ProductFields
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid json body")
		return
	}
	p, err := h.svc.UpdateProduct(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: p})
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: gin.H{"id": c.Param("id")}, Message: "product deleted"})
}

func (h *ProductHandler) UpdateVersioned(c *gin.Context) {
	var body models.VersionedPatch
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid json body")
		return
	}
	res, err := h.svc.UpdateWithVersionCheck(c.Request.Context(), c.Param("id"), body.ProductFields, body.Revision, body.BelievedLastModified())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.metrics.VersionedWrite(res.Outcome.String())
	switch res.Outcome {
	case services.OutcomeOK:
		c.JSON(http.StatusOK, Envelope{Success: true, Data: res.Product})
	case services.OutcomeConflict:
		c.JSON(http.StatusConflict, Envelope{Success: false, Data: res.Conflict, Message: res.Conflict.Message})
	default:
		h.writeError(c, res.Err())
	}
}

func (h *ProductHandler) ConsistencyCheck(c *gin.Context) {
	snap, err := h.svc.CheckConsistency(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: snap})
}

func (h *ProductHandler) DetectConflicts(c *gin.Context) {
	var body []models.ClientRecord
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body must be an array of records")
		return
	}
	for i, rec := range body {
		if strings.TrimSpace(rec.ID) == "" {
			badRequest(c, fmt.Sprintf("record %d has no id", i))
			return
		}
	}
	found, err := h.svc.DetectConflicts(c.Request.Context(), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	n := 0
	for _, rec := range found {
		n += len(rec.Conflicts)
	}
	h.metrics.ConflictsDetected(n)
	c.JSON(http.StatusOK, Envelope{Success: true, Data: found})
}

func (h *ProductHandler) BulkUpdate(c *gin.Context) {
	var body []models.VersionedPatch
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body must be an array of patches")
		return
	}
	res, err := h.svc.BulkUpdate(c.Request.Context(), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.metrics.BulkItems(len(res.Updated), len(res.Conflicts), len(res.Failures))
	c.JSON(http.StatusOK, Envelope{Success: true, Data: res})
}

func (h *ProductHandler) writeError(c *gin.Context, err error) {
	var conflict *services.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, Envelope{Success: false, Data: conflict.Info, Message: conflict.Error()})
	case errors.Is(err, repos.ErrNotFound):
		c.JSON(http.StatusNotFound, Envelope{Success: false, Message: "product not found"})
	case errors.Is(err, services.ErrBadRequest):
		badRequest(c, err.Error())
	default:
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, Envelope{Success: false, Message: "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Envelope{Success: false, Message: msg})
}
