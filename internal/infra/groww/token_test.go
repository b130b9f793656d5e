package groww

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ratio_watch/internal/domain"
)

// RFC 6238 reference secret "12345678901234567890".
const rfcSecretB32 = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestNormalizeTOTPSecret(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"base32", rfcSecretB32, rfcSecretB32, false},
		{"base32 lower with spaces", " gezd gnbv gy3t qojq gezd gnbv gy3t qojq ", rfcSecretB32, false},
		{"hex", "3132333435363738393031323334353637383930", rfcSecretB32, false},
		{"base64", "MTIzNDU2Nzg5MDEyMzQ1Njc4OTA=", rfcSecretB32, false},
		{"base64 unpadded", "MTIzNDU2Nzg5MDEyMzQ1Njc4OTA", rfcSecretB32, false},
		{"empty", "   ", "", true},
		{"garbage", "!!not-a-secret!!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTOTPSecret(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTOTPSecret) {
					t.Fatalf("expected ErrInvalidTOTPSecret, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTOTPCode_RFCVector(t *testing.T) {
	code, err := TOTPCode(rfcSecretB32, time.Unix(59, 0))
	if err != nil {
		t.Fatal(err)
	}
	if code != "287082" {
		t.Errorf("code = %s, want 287082", code)
	}
}

func TestChecksum(t *testing.T) {
	// sha256("abc")
	if got := Checksum("a", "bc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("checksum = %s", got)
	}
}

func tokenServer(t *testing.T, status int, check func(body map[string]string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != tokenPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("authorization = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if check != nil {
			check(body)
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"token":"fresh-token"}`))
		} else {
			w.Write([]byte(`{"error":"bad"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenClient_ExplicitTokenWins(t *testing.T) {
	c := NewTokenClient("http://unused.invalid", Credentials{AccessToken: " static ", APIKey: "key-1", APISecret: "s"})

	tok, err := c.AccessToken(context.Background())
	if err != nil || tok != "static" {
		t.Errorf("AccessToken = %q, %v", tok, err)
	}
}

func TestTokenClient_TOTPFlow(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, func(body map[string]string) {
		if body["key_type"] != "totp" || body["totp"] != "287082" {
			t.Errorf("unexpected body %v", body)
		}
	})

	c := NewTokenClient(srv.URL+"/", Credentials{APIKey: "key-1", TOTPSecret: rfcSecretB32, APISecret: "ignored"})
	c.now = func() time.Time { return time.Unix(59, 0) }

	tok, err := c.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if tok != "fresh-token" {
		t.Errorf("token = %q", tok)
	}
}

func TestTokenClient_ApprovalFlow(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, func(body map[string]string) {
		if body["key_type"] != "approval" || body["timestamp"] != "1700000000" {
			t.Errorf("unexpected body %v", body)
		}
		if body["checksum"] != Checksum("secret-1", "1700000000") {
			t.Errorf("bad checksum %q", body["checksum"])
		}
	})

	c := NewTokenClient(srv.URL, Credentials{APIKey: "key-1", APISecret: "secret-1"})
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	if tok, err := c.Generate(context.Background()); err != nil || tok != "fresh-token" {
		t.Errorf("Generate = %q, %v", tok, err)
	}
}

func TestTokenClient_TOTPBadRequestHint(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, nil)

	c := NewTokenClient(srv.URL, Credentials{APIKey: "key-1", TOTPSecret: rfcSecretB32})
	_, err := c.Generate(context.Background())

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
	if !strings.Contains(err.Error(), "TOTP") {
		t.Errorf("missing hint: %v", err)
	}
}

func TestTokenClient_NoCredentials(t *testing.T) {
	c := NewTokenClient("http://unused.invalid", Credentials{APIKey: "key-only"})
	if _, err := c.AccessToken(context.Background()); !errors.Is(err, domain.ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if (Credentials{APIKey: "k", APISecret: "s"}).CanGenerate() != true {
		t.Error("key + secret can generate")
	}
}
