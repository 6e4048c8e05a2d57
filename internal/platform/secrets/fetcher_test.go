package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretManager struct {
	responses map[string]string
	err       error
	requests  []string
	closed    bool
}

func (s *stubSecretManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.requests = append(s.requests, req.GetName())
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.responses[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubSecretManager) Close() error {
	s.closed = true
	return nil
}

func TestFetcherResolvesRemoteSecret(t *testing.T) {
	client := &stubSecretManager{
		responses: map[string]string{
			"projects/mercantia-prod/secrets/pagarme-api-key/versions/latest": "sk_live_123",
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("mercantia-prod"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://pagarme-api-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_live_123" {
		t.Fatalf("unexpected secret value: %s", value)
	}

	// Second resolve should hit the cache.
	if _, err := fetcher.Resolve(context.Background(), "secret://pagarme-api-key"); err != nil {
		t.Fatalf("cached Resolve returned error: %v", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected a single remote request, got %d", len(client.requests))
	}
}

func TestFetcherHonoursVersionAndProjectOverrides(t *testing.T) {
	client := &stubSecretManager{
		responses: map[string]string{
			"projects/other-proj/secrets/webhook-secret/versions/4": "whsec_4",
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("mercantia-prod"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://webhook-secret?version=4&project=other-proj")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "whsec_4" {
		t.Fatalf("unexpected secret value: %s", value)
	}
}

func TestFetcherFallsBackToLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	contents := "# local secrets\nsecret://stripe-api-key=sk_test_local\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := &stubSecretManager{err: status.Error(codes.PermissionDenied, "denied")}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("mercantia-prod"),
		WithFallbackFile(path),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://stripe-api-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_test_local" {
		t.Fatalf("unexpected fallback value: %s", value)
	}
}

func TestFetcherRejectsInvalidReferences(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&stubSecretManager{}),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(context.Background(), "vault://nope"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
	if _, err := fetcher.Resolve(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty reference")
	}
}

func TestFetcherInvalidateClearsCache(t *testing.T) {
	client := &stubSecretManager{
		responses: map[string]string{
			"projects/mercantia-prod/secrets/pagarme-api-key/versions/latest": "v1",
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("mercantia-prod"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(context.Background(), "secret://pagarme-api-key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	client.responses["projects/mercantia-prod/secrets/pagarme-api-key/versions/latest"] = "v2"
	fetcher.Invalidate("secret://pagarme-api-key")

	value, err := fetcher.Resolve(context.Background(), "secret://pagarme-api-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "v2" {
		t.Fatalf("expected rotated value after invalidate, got %s", value)
	}
}
