package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestVerifier(t *testing.T, handler http.HandlerFunc) *HTTPVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPVerifier(srv.URL, "sk_test_123", srv.Client())
}

func TestHTTPVerifierSuccess(t *testing.T) {
	v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref-42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_123" {
			t.Errorf("secret key not forwarded")
		}
		w.Write([]byte(`{"status":true,"data":{"status":"success","amount":22500,"currency":"NGN"}}`))
	})

	verification, err := v.Verify(context.Background(), "ref-42")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !verification.Verified {
		t.Fatal("expected verified")
	}
	if verification.AmountMinor != 22_500 || verification.Currency != "NGN" {
		t.Fatalf("unexpected verification: %+v", verification)
	}
}

func TestHTTPVerifierFailedTransaction(t *testing.T) {
	v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"data":{"status":"failed","amount":0,"currency":"NGN"}}`))
	})

	verification, err := v.Verify(context.Background(), "ref-42")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verification.Verified {
		t.Fatal("failed transaction must not verify")
	}
}

func TestHTTPVerifierGatewayError(t *testing.T) {
	v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := v.Verify(context.Background(), "ref-42")
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
}

func TestHTTPVerifierUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	v := NewHTTPVerifier(url, "sk_test_123", nil)
	_, err := v.Verify(context.Background(), "ref-42")
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
}
