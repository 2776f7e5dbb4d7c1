package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agritrace/provenance-anchor/internal/api/apierrors"
	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/logger"
)

// respondError maps a pipeline error onto an HTTP status and a structured
// API error body
func respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	var notFoundErr *domain.NotFoundError
	var ledgerErr *domain.LedgerError
	var persistenceErr *domain.PersistenceError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, apierrors.NewValidationError(validationErr.Fields...))

	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, apierrors.NewNotFoundError("Record not found", notFoundErr.Identifier))

	case errors.Is(err, domain.ErrAnchorNotFound):
		c.JSON(http.StatusNotFound, apierrors.NewNotFoundError("Anchor transaction not found"))

	case errors.Is(err, domain.ErrAnchorNotConfirmed):
		c.JSON(http.StatusNotFound, apierrors.NewNotFoundError("Anchor transaction not confirmed yet"))

	case errors.As(err, &ledgerErr):
		respondLedgerError(c, ledgerErr)

	case errors.As(err, &persistenceErr):
		logger.ErrorCtx(c.Request.Context(), err,
			zap.String("orphaned_tx_hash", persistenceErr.OrphanedTxHash))
		if persistenceErr.OrphanedTxHash != "" {
			c.JSON(http.StatusInternalServerError,
				apierrors.NewDatabaseError("Failed to persist record", "anchor transaction "+persistenceErr.OrphanedTxHash+" has no local record"))
			return
		}
		c.JSON(http.StatusInternalServerError, apierrors.NewDatabaseError("Database operation failed"))

	default:
		logger.ErrorCtx(c.Request.Context(), err)
		c.JSON(http.StatusInternalServerError, apierrors.NewInternalError("Internal server error"))
	}
}

// respondLedgerError distinguishes caller mistakes from upstream ledger
// failures
func respondLedgerError(c *gin.Context, err *domain.LedgerError) {
	switch err.Cause {
	case domain.LedgerCauseInvalidDigest:
		c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError("Invalid digest", err.Error()))

	case domain.LedgerCauseInsufficientFunds:
		c.JSON(http.StatusServiceUnavailable, apierrors.NewLedgerError("Signer account cannot fund the anchor transaction"))

	default:
		logger.ErrorCtx(c.Request.Context(), err)
		c.JSON(http.StatusBadGateway, apierrors.NewLedgerError("Ledger operation failed", string(err.Cause)))
	}
}
