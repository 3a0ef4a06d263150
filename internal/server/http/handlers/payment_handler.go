package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
	"github.com/urbanstore/khqrpay/internal/server/http/dto"
)

// PaymentHandler manages payment issuance and status endpoints.
type PaymentHandler struct {
	facade PaymentFacade
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(facade PaymentFacade) *PaymentHandler {
	return &PaymentHandler{facade: facade}
}

// Create handles POST /api/user/payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	h.issue(c, h.facade.IssuePayment)
}

// Retry handles POST /api/user/payments/retry.
func (h *PaymentHandler) Retry(c *gin.Context) {
	h.issue(c, h.facade.RetryPayment)
}

func (h *PaymentHandler) issue(c *gin.Context, op func(ctx context.Context, orderID int64) (*model.Issuance, error)) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "orderId is required"})
		return
	}

	issuance, err := op(c.Request.Context(), req.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrNotFound):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "order not found"})
		case errors.Is(err, domainErrors.ErrInvalidState):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "order is not payable"})
		case errors.Is(err, domainErrors.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid payment amount"})
		case errors.Is(err, domainErrors.ErrIssuanceRejected):
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{Message: "payment issuance failed", Debug: "issuer_contract_violation"})
		case errors.Is(err, domainErrors.ErrIssuanceUnavailable):
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{Message: "payment issuance failed", Debug: "issuer_unreachable"})
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, dto.PaymentResponse{
		PaymentID: issuance.PaymentID,
		OrderID:   issuance.OrderID,
		Amount:    issuance.Amount,
		QRString:  issuance.QRString,
	})
}

// Status handles POST /api/user/payments/status.
func (h *PaymentHandler) Status(c *gin.Context) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "orderId is required"})
		return
	}

	state, err := h.facade.CheckPayment(c.Request.Context(), req.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrNotFound):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "order not found"})
		case errors.Is(err, domainErrors.ErrOracleUnauthorized):
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{Message: "payment verification unavailable", Debug: "upstream_credential_rejected"})
		case errors.Is(err, domainErrors.ErrOracleUnavailable):
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{Message: "payment verification unavailable", Debug: "upstream_unreachable"})
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, dto.PaymentStatusResponse{
		OrderID:       req.OrderID,
		Status:        string(state.Status),
		ExternalTxRef: state.ExternalTxRef,
	})
}
