package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const defaultWebhookSignatureHeader = "X-Hub-Signature"

var (
	// ErrSignatureMissing indicates that the request carried no signature header.
	ErrSignatureMissing = errors.New("auth: webhook signature missing")
	// ErrSignatureInvalid indicates that the signature did not match the request body.
	ErrSignatureInvalid = errors.New("auth: webhook signature invalid")
)

// WebhookVerifier validates HMAC-SHA256 signed webhook deliveries from the payment gateway.
type WebhookVerifier struct {
	secret []byte
	header string
}

// WebhookOption customises the verifier.
type WebhookOption func(*WebhookVerifier)

// WithSignatureHeader overrides the header carrying the signature.
func WithSignatureHeader(name string) WebhookOption {
	return func(v *WebhookVerifier) {
		name = strings.TrimSpace(name)
		if name != "" {
			v.header = name
		}
	}
}

// NewWebhookVerifier constructs a verifier for the given shared secret.
func NewWebhookVerifier(secret string, opts ...WebhookOption) *WebhookVerifier {
	verifier := &WebhookVerifier{
		secret: []byte(strings.TrimSpace(secret)),
		header: defaultWebhookSignatureHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier
}

// Verify checks the signature against the raw request body.
// Signatures are accepted with or without the "sha256=" prefix.
func (v *WebhookVerifier) Verify(signature string, body []byte) error {
	if v == nil || len(v.secret) == 0 {
		return errors.New("auth: webhook secret not configured")
	}

	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Middleware rejects webhook deliveries whose signature does not match the body.
// The request body remains readable by downstream handlers.
func (v *WebhookVerifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				data, err := io.ReadAll(r.Body)
				if err != nil {
					respondWebhookError(w, http.StatusBadRequest, "webhook_body_unreadable", "unable to read webhook body")
					return
				}
				_ = r.Body.Close()
				body = data
				r.Body = io.NopCloser(bytes.NewReader(data))
			}

			if err := v.Verify(r.Header.Get(v.header), body); err != nil {
				switch {
				case errors.Is(err, ErrSignatureMissing):
					respondWebhookError(w, http.StatusUnauthorized, "webhook_signature_missing", "webhook signature header missing")
				default:
					respondWebhookError(w, http.StatusUnauthorized, "webhook_signature_invalid", "webhook signature verification failed")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondWebhookError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
