package bakong

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// Issuer requests a new payment QR for an order amount.
type Issuer interface {
	CreateQR(ctx context.Context, orderID int64, amount int64) (*model.QRCode, error)
}

// Oracle answers whether a previously issued QR has been paid.
type Oracle interface {
	CheckPayment(ctx context.Context, digest string) (*model.OracleResult, error)
}

// HTTPClient talks to the Bakong KHQR gateway service, which exposes both the
// issuance and the status-check endpoints.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

type createQRRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

type createQRResponse struct {
	QRString string `json:"qr_string"`
	MD5      string `json:"md5"`
}

type checkPaymentRequest struct {
	MD5Hash string `json:"md5_hash"`
}

// checkPaymentResponse mirrors the gateway's tri-state envelope:
// responseCode 0 means confirmed, 1 not found, -1 gateway/provider error.
type checkPaymentResponse struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	Data            *struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

// NewHTTPClient creates a gateway client with default timeout.
func NewHTTPClient(baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse bakong url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("bakong url must be absolute")
	}
	return &HTTPClient{
		baseURL: parsed,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// CreateQR requests a fresh KHQR payload and verification digest.
func (c *HTTPClient) CreateQR(ctx context.Context, orderID int64, amount int64) (*model.QRCode, error) {
	var data createQRResponse
	if err := c.post(ctx, "/create-qr", createQRRequest{OrderID: strconv.FormatInt(orderID, 10), Amount: amount}, &data, domainErrors.ErrIssuanceUnavailable); err != nil {
		return nil, err
	}
	if data.QRString == "" || data.MD5 == "" {
		c.logger.Error("issuer returned incomplete response",
			slog.Int64("order", orderID),
			slog.Bool("has_qr", data.QRString != ""),
			slog.Bool("has_md5", data.MD5 != ""),
		)
		return nil, fmt.Errorf("%w: missing qr_string or md5", domainErrors.ErrIssuanceRejected)
	}
	return &model.QRCode{QRString: data.QRString, VerificationDigest: data.MD5}, nil
}

// CheckPayment asks the oracle whether the transaction behind the digest
// settled. A transport failure maps to ErrOracleUnavailable and must be
// treated by callers as "not yet found", never as cancellation.
func (c *HTTPClient) CheckPayment(ctx context.Context, digest string) (*model.OracleResult, error) {
	var data checkPaymentResponse
	if err := c.post(ctx, "/check-payment", checkPaymentRequest{MD5Hash: digest}, &data, domainErrors.ErrOracleUnavailable); err != nil {
		return nil, err
	}

	switch data.ResponseCode {
	case 0:
		result := &model.OracleResult{Status: model.OracleStatusConfirmed}
		if data.Data != nil {
			result.ExternalTxRef = data.Data.Hash
		}
		return result, nil
	case 1:
		return &model.OracleResult{Status: model.OracleStatusNotFound}, nil
	default:
		if unauthorizedMessage(data.ResponseMessage) {
			return nil, domainErrors.ErrOracleUnauthorized
		}
		c.logger.Error("oracle reported error", slog.String("message", data.ResponseMessage))
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrOracleUnavailable, data.ResponseMessage)
	}
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, payload, out any, transportErr error) error {
	target := *c.baseURL
	target.Path = path.Join(target.Path, endpoint)

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", transportErr, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: %s", transportErr, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: malformed response body", transportErr)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domainErrors.ErrOracleUnauthorized
	default:
		raw, _ := io.ReadAll(resp.Body)
		c.logger.Error("bakong request failed",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(raw)),
		)
		return fmt.Errorf("%w: %s", transportErr, resp.Status)
	}
}

func unauthorizedMessage(message string) bool {
	lowered := strings.ToLower(message)
	return strings.Contains(lowered, "unauthorized") || strings.Contains(lowered, "not authorized") || strings.Contains(lowered, "invalid token")
}
