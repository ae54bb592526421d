package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/orderflow/pkg/config"
)

func TestSignedReadURLVerifiesWithServiceAccountKey(t *testing.T) {
	t.Parallel()

	key := mustGenerateKey(t)
	now := time.Unix(1_700_000_000, 0)
	client := &Client{
		bucket: "proofs",
		signer: &signer{email: "signer@example.com", key: key, now: func() time.Time { return now }},
	}

	object := "orders/receipt.jpg"
	raw, err := client.SignedReadURL("", "/"+object, 5*time.Minute)
	if err != nil {
		t.Fatalf("SignedReadURL returned error: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if parsed.Host != storageHost || parsed.Path != "/proofs/"+object {
		t.Fatalf("unexpected url %s", raw)
	}

	values := parsed.Query()
	if got := values.Get("GoogleAccessId"); got != "signer@example.com" {
		t.Fatalf("unexpected GoogleAccessId %q", got)
	}
	if got := values.Get("Expires"); got != "1700000300" {
		t.Fatalf("unexpected Expires %q", got)
	}
	sig, err := base64.StdEncoding.DecodeString(values.Get("Signature"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	digest := sha256.Sum256([]byte("GET\n\n\n1700000300\n/proofs/" + object))
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("verify signature: %v", err)
	}
}

func TestSignedReadURLWithoutKeyFallsBackToBrowserURL(t *testing.T) {
	t.Parallel()

	client := &Client{bucket: "proofs"}
	got, err := client.SignedReadURL("", "orders/a.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedReadURL: %v", err)
	}
	if got != "https://storage.cloud.google.com/proofs/orders/a.jpg" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestSignedReadURLErrors(t *testing.T) {
	t.Parallel()

	client := &Client{signer: &signer{email: "x@example.com", key: mustGenerateKey(t), now: time.Now}}
	cases := []struct {
		name   string
		bucket string
		object string
		ttl    time.Duration
	}{
		{"missing bucket", "", "object", time.Minute},
		{"missing object", "bucket", "", time.Minute},
		{"non-positive ttl", "bucket", "object", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := client.SignedReadURL(tc.bucket, tc.object, tc.ttl); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestNewSignerReadsServiceAccountJSON(t *testing.T) {
	t.Parallel()

	key := mustGenerateKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	creds, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "orderflow@project.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	if err != nil {
		t.Fatalf("marshal creds: %v", err)
	}

	s, err := newSigner(creds)
	if err != nil {
		t.Fatalf("newSigner: %v", err)
	}
	if s == nil || s.email != "orderflow@project.iam.gserviceaccount.com" || !s.key.Equal(key) {
		t.Fatalf("unexpected signer %+v", s)
	}

	s, err = newSigner([]byte(`{"type":"authorized_user","client_id":"x"}`))
	if err != nil || s != nil {
		t.Fatalf("expected no signer for user credentials, got %v %v", s, err)
	}
	if _, err := newSigner([]byte(`not json`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCredentialsJSONPrefersInline(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	got, err := credentialsJSON(config.GCPConfig{CredentialsJSON: `{"from":"env"}`, ApplicationCredentials: path})
	if err != nil || string(got) != `{"from":"env"}` {
		t.Fatalf("expected inline credentials, got %s %v", got, err)
	}
	got, err = credentialsJSON(config.GCPConfig{ApplicationCredentials: path})
	if err != nil || string(got) != `{"from":"file"}` {
		t.Fatalf("expected file credentials, got %s %v", got, err)
	}
	got, err = credentialsJSON(config.GCPConfig{})
	if err != nil || got != nil {
		t.Fatalf("expected ambient credentials, got %s %v", got, err)
	}
	if _, err := credentialsJSON(config.GCPConfig{ApplicationCredentials: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Fatal("expected error for missing key file")
	}
}

func TestObjectExistsAndPing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/storage/v1/b/proofs":
			_, _ = w.Write([]byte(`{"name":"proofs"}`))
		case r.URL.Path == "/storage/v1/b/proofs/o/orders/a.jpg":
			_, _ = w.Write([]byte(`{"name":"orders/a.jpg"}`))
		case strings.HasPrefix(r.URL.Path, "/storage/v1/b/proofs/o/"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
		}
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	svc, err := storage.NewService(ctx,
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("storage service: %v", err)
	}
	client := &Client{svc: svc, bucket: "proofs"}

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	ok, err := client.ObjectExists(ctx, "", "orders/a.jpg")
	if err != nil || !ok {
		t.Fatalf("expected object to exist, got %v %v", ok, err)
	}
	ok, err = client.ObjectExists(ctx, "proofs", "orders/missing.jpg")
	if err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}
	if _, err := client.ObjectExists(ctx, "other", "a.jpg"); err == nil {
		t.Fatal("expected forbidden error")
	}

	denied := &Client{svc: svc, bucket: "other"}
	if err := denied.Ping(ctx); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("expected denied ping, got %v", err)
	}
}

func mustGenerateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}
