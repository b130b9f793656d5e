package groww

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ratio_watch/internal/domain"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const tokenPath = "/v1/token/api/access"

// ErrInvalidTOTPSecret is returned when a TOTP secret is neither base32, hex nor base64.
var ErrInvalidTOTPSecret = errors.New("TOTP secret must be base32 (A-Z, 2-7), hex, or base64; copy the exact secret from the TOTP setup, not the 6-digit code")

// Credentials are the ways to obtain a feed access token, in priority order:
// an explicit token, API key + TOTP secret, API key + API secret.
type Credentials struct {
	AccessToken string
	APIKey      string
	APISecret   string
	TOTPSecret  string
}

// CanGenerate reports whether a fresh token can be requested from the API.
func (c Credentials) CanGenerate() bool {
	return c.APIKey != "" && (c.TOTPSecret != "" || c.APISecret != "")
}

// TokenClient exchanges API credentials for an access token.
type TokenClient struct {
	restURL    string
	creds      Credentials
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// NewTokenClient creates a token client against the REST base URL.
func NewTokenClient(restURL string, creds Credentials) *TokenClient {
	return &TokenClient{
		restURL: strings.TrimRight(restURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now:    time.Now,
		logger: slog.Default().With("module", "groww_token"),
	}
}

// AccessToken returns the explicit token when one is configured and
// generates one otherwise.
func (c *TokenClient) AccessToken(ctx context.Context) (string, error) {
	if tok := strings.TrimSpace(c.creds.AccessToken); tok != "" {
		return tok, nil
	}
	return c.Generate(ctx)
}

// Generate always requests a new token with the API credentials.
func (c *TokenClient) Generate(ctx context.Context) (string, error) {
	switch {
	case c.creds.APIKey != "" && c.creds.TOTPSecret != "":
		secret, err := NormalizeTOTPSecret(c.creds.TOTPSecret)
		if err != nil {
			return "", err
		}
		code, err := TOTPCode(secret, c.now())
		if err != nil {
			return "", fmt.Errorf("generate TOTP code: %w", err)
		}
		tok, err := c.request(ctx, map[string]string{"key_type": "totp", "totp": code})
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Code == http.StatusBadRequest {
				return "", fmt.Errorf("%w; a 400 here usually means the API key is not the one created for TOTP "+
					"or the secret does not belong to that key (alternatively use API key + API secret and approve the key daily)", err)
			}
			return "", fmt.Errorf("could not generate token from API key + TOTP secret: %w", err)
		}
		return tok, nil

	case c.creds.APIKey != "" && c.creds.APISecret != "":
		ts := strconv.FormatInt(c.now().Unix(), 10)
		tok, err := c.request(ctx, map[string]string{
			"key_type":  "approval",
			"checksum":  Checksum(c.creds.APISecret, ts),
			"timestamp": ts,
		})
		if err != nil {
			return "", fmt.Errorf("could not generate token from API key + API secret (is the key approved for today?): %w", err)
		}
		return tok, nil
	}

	return "", domain.ErrNoCredentials
}

// StatusError is a non-2xx answer from the token endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Code, e.Body)
}

func (c *TokenClient) request(ctx context.Context, body map[string]string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewNetworkError("token", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.NewNetworkError("token", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("token response carries no token")
	}

	c.logger.Info("Access token generated")
	return out.Token, nil
}

// Checksum is the hex SHA-256 of secret+timestamp used by the approval flow.
func Checksum(secret, timestamp string) string {
	sum := sha256.Sum256([]byte(secret + timestamp))
	return hex.EncodeToString(sum[:])
}

// TOTPCode returns the 6-digit, 30-second SHA1 code for a base32 secret.
func TOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// NormalizeTOTPSecret returns a base32 secret for raw, which may be given as
// base32, hex or base64 (standard or URL-safe). Spaces are ignored.
func NormalizeTOTPSecret(raw string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if s == "" {
		return "", ErrInvalidTOTPSecret
	}

	upper := strings.ToUpper(s)
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(upper, "=")); err == nil {
		return upper, nil
	}

	if len(s)%2 == 0 {
		if b, err := hex.DecodeString(s); err == nil {
			return toBase32(b), nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return toBase32(b), nil
		}
	}

	return "", ErrInvalidTOTPSecret
}

func toBase32(b []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
}
