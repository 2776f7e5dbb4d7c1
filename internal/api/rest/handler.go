package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agritrace/provenance-anchor/internal/anchor"
	"github.com/agritrace/provenance-anchor/internal/api/apierrors"
	"github.com/agritrace/provenance-anchor/internal/coordinator"
	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/store"
)

// Handler defines the REST API handlers
type Handler interface {
	StoreRecord(c *gin.Context)
	GetRecord(c *gin.Context)
	VerifyRecord(c *gin.Context)
	UpdateRecordStatus(c *gin.Context)
	DeleteAttachment(c *gin.Context)
	GetAnchor(c *gin.Context)
	GetNetwork(c *gin.Context)
	HealthCheck(c *gin.Context)
}

type handler struct {
	coordinator   coordinator.Coordinator
	anchorer      anchor.Anchorer
	store         store.Store
	maxUploadSize int64
}

// NewHandler creates a new REST handler
func NewHandler(coord coordinator.Coordinator, anchorer anchor.Anchorer, st store.Store, maxUploadSize int64) Handler {
	return &handler{
		coordinator:   coord,
		anchorer:      anchorer,
		store:         st,
		maxUploadSize: maxUploadSize,
	}
}

// StoreRecord handles POST /records. A plain JSON body stores a record
// without attachments; a multipart form carries the record JSON in the
// "record" field plus any number of "files" parts.
func (h *handler) StoreRecord(c *gin.Context) {
	req, files, err := h.parseStoreRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError("Invalid request body", err.Error()))
		return
	}

	result, err := h.coordinator.Store(c.Request.Context(), &coordinator.StoreInput{
		Record:       req.ToRecord(),
		ProducerName: req.ProducerName,
		Files:        files,
		Metadata:     req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// parseStoreRequest decodes either body shape into a request plus uploads
func (h *handler) parseStoreRequest(c *gin.Context) (*StoreRecordRequest, []domain.FileUpload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	var req StoreRecordRequest
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, err
		}
		return &req, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, err
	}

	recordValues := form.Value["record"]
	if len(recordValues) == 0 {
		return nil, nil, fmt.Errorf("missing record field in multipart form")
	}
	if err := json.Unmarshal([]byte(recordValues[0]), &req); err != nil {
		return nil, nil, fmt.Errorf("failed to parse record field: %w", err)
	}

	files := make([]domain.FileUpload, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
		}
		files = append(files, domain.FileUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	return &req, files, nil
}

// GetRecord handles GET /records/:identifier. The identifier resolves by
// internal ID, digest, or anchor transaction hash; ?ledger=true additionally
// recovers the on-chain copy.
func (h *handler) GetRecord(c *gin.Context) {
	withLedger := c.Query("ledger") == "true"

	result, err := h.coordinator.Retrieve(c.Request.Context(), c.Param("identifier"), withLedger)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapRecordResponse(result))
}

// VerifyRecord handles POST /records/:identifier/verify. The caller supplies
// a fresh copy of the record fields; the verdict compares its digest against
// the stored one. A mismatch is a 200 with outcome TAMPERED, not an error.
func (h *handler) VerifyRecord(c *gin.Context) {
	var req VerifyRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError("Invalid request body", err.Error()))
		return
	}

	result, err := h.coordinator.Verify(c.Request.Context(), &coordinator.VerifyInput{
		Identifier: c.Param("identifier"),
		Fresh:      req.ToRecord(),
		Caller: domain.CallerInfo{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
		WithLedgerCheck: req.LedgerCheck,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateRecordStatus handles PATCH /records/:identifier/status. Unlike
// retrieval, status updates address records by internal ID only.
func (h *handler) UpdateRecordStatus(c *gin.Context) {
	recordID, err := strconv.ParseUint(c.Param("identifier"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError("Invalid record ID", c.Param("identifier")))
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError("Invalid request body", err.Error()))
		return
	}
	if !domain.IsValidRecordStatus(req.Status) {
		c.JSON(http.StatusUnprocessableEntity, apierrors.NewValidationError("invalid status: "+string(req.Status)))
		return
	}

	if err := h.store.UpdateRecordStatus(c.Request.Context(), recordID, req.Status); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": recordID, "status": req.Status})
}

// DeleteAttachment handles DELETE /attachments/:id. The row stays in place
// flagged as deleted so combined digests remain verifiable.
func (h *handler) DeleteAttachment(c *gin.Context) {
	attachmentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError("Invalid attachment ID", c.Param("id")))
		return
	}

	if err := h.store.SoftDeleteAttachment(c.Request.Context(), attachmentID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetAnchor handles GET /anchors/:txHash. Recovering the transaction also
// re-applies its observed confirmation status locally.
func (h *handler) GetAnchor(c *gin.Context) {
	txHash := c.Param("txHash")
	if !domain.IsHexIdentifier(txHash) {
		c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError("Invalid transaction hash", txHash))
		return
	}

	recovery, err := h.coordinator.Reconfirm(c.Request.Context(), txHash)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapLedger(recovery))
}

// GetNetwork handles GET /network
func (h *handler) GetNetwork(c *gin.Context) {
	network, err := h.anchorer.NetworkInfo(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, NetworkResponse{
		ChainID:       network.ChainID.String(),
		NetworkID:     network.NetworkID.String(),
		LatestBlock:   network.LatestBlock,
		SignerAddress: network.SignerAddress,
		SignerBalance: network.SignerBalance.String(),
	})
}

// HealthCheck handles GET /health
func (h *handler) HealthCheck(c *gin.Context) {
	if err := h.store.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
