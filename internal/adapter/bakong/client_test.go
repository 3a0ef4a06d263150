package bakong

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	client, err := NewHTTPClient(server.URL, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestNewHTTPClientInvalidURL(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := NewHTTPClient(":://bad", logger); err == nil {
		t.Fatal("expected error for unparsable url")
	}
	if _, err := NewHTTPClient("relative/path", logger); err == nil {
		t.Fatal("expected error for relative url")
	}
}

func TestCreateQRSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/create-qr" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req createQRRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.OrderID != "7" || req.Amount != 10000 {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(createQRResponse{QRString: "000201qr", MD5: "abcd1234"})
	})

	qr, err := client.CreateQR(context.Background(), 7, 10000)
	if err != nil {
		t.Fatalf("create qr: %v", err)
	}
	if qr.QRString != "000201qr" || qr.VerificationDigest != "abcd1234" {
		t.Fatalf("unexpected qr %+v", qr)
	}
}

func TestCreateQRIncompleteResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(createQRResponse{QRString: "000201qr"})
	})

	if _, err := client.CreateQR(context.Background(), 7, 10000); !errors.Is(err, domainErrors.ErrIssuanceRejected) {
		t.Fatalf("expected ErrIssuanceRejected, got %v", err)
	}
}

func TestCreateQRServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.CreateQR(context.Background(), 7, 10000); !errors.Is(err, domainErrors.ErrIssuanceUnavailable) {
		t.Fatalf("expected ErrIssuanceUnavailable, got %v", err)
	}
}

func TestCreateQRTransportFailure(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	if _, err := client.CreateQR(context.Background(), 7, 10000); !errors.Is(err, domainErrors.ErrIssuanceUnavailable) {
		t.Fatalf("expected ErrIssuanceUnavailable, got %v", err)
	}
}

func TestCheckPaymentConfirmed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check-payment" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req checkPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.MD5Hash != "digest-1" {
			t.Errorf("unexpected digest %q", req.MD5Hash)
		}
		_, _ = w.Write([]byte(`{"responseCode":0,"responseMessage":"Payment successful","data":{"hash":"tx123"}}`))
	})

	result, err := client.CheckPayment(context.Background(), "digest-1")
	if err != nil {
		t.Fatalf("check payment: %v", err)
	}
	if result.Status != model.OracleStatusConfirmed || result.ExternalTxRef != "tx123" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckPaymentNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responseCode":1,"responseMessage":"Transaction not found or pending","data":null}`))
	})

	result, err := client.CheckPayment(context.Background(), "digest-1")
	if err != nil {
		t.Fatalf("check payment: %v", err)
	}
	if result.Status != model.OracleStatusNotFound {
		t.Fatalf("expected not-found, got %+v", result)
	}
}

func TestCheckPaymentUnauthorizedStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := client.CheckPayment(context.Background(), "digest-1"); !errors.Is(err, domainErrors.ErrOracleUnauthorized) {
		t.Fatalf("expected ErrOracleUnauthorized, got %v", err)
	}
}

func TestCheckPaymentUnauthorizedMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responseCode":-1,"responseMessage":"Proxy/Bakong Error: Unauthorized","data":null}`))
	})

	if _, err := client.CheckPayment(context.Background(), "digest-1"); !errors.Is(err, domainErrors.ErrOracleUnauthorized) {
		t.Fatalf("expected ErrOracleUnauthorized, got %v", err)
	}
}

func TestCheckPaymentGatewayError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responseCode":-1,"responseMessage":"connection refused","data":null}`))
	})

	if _, err := client.CheckPayment(context.Background(), "digest-1"); !errors.Is(err, domainErrors.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestCheckPaymentTransportFailure(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	if _, err := client.CheckPayment(context.Background(), "digest-1"); !errors.Is(err, domainErrors.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestCheckPaymentMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responseCode":`))
	})

	if _, err := client.CheckPayment(context.Background(), "digest-1"); !errors.Is(err, domainErrors.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}
