package gcs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/angelmondragon/orderflow/pkg/config"
)

const storageHost = "storage.googleapis.com"

// signer produces V2 signed URLs with a service account key.
type signer struct {
	email string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// credentialsJSON returns inline credentials, then the key file, or nil to use
// ambient credentials.
func credentialsJSON(gcp config.GCPConfig) ([]byte, error) {
	if inline := strings.TrimSpace(gcp.CredentialsJSON); inline != "" {
		return []byte(inline), nil
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

// newSigner returns nil for credential types that carry no private key.
func newSigner(creds []byte) (*signer, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(creds, &head); err != nil {
		return nil, fmt.Errorf("parsing gcp credentials: %w", err)
	}
	if head.Type != "service_account" {
		return nil, nil
	}

	cfg, err := google.JWTConfigFromJSON(creds)
	if err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if cfg.Email == "" {
		return nil, errors.New("service account credentials missing client_email")
	}
	key, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &signer{email: cfg.Email, key: key, now: time.Now}, nil
}

func (s *signer) readURL(bucket, object string, ttl time.Duration) (string, error) {
	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	resource := "/" + bucket + "/" + object
	sig, err := s.sign(http.MethodGet + "\n\n\n" + expires + "\n" + resource)
	if err != nil {
		return "", fmt.Errorf("signing url: %w", err)
	}

	q := url.Values{}
	q.Set("GoogleAccessId", s.email)
	q.Set("Expires", expires)
	q.Set("Signature", sig)
	u := url.URL{Scheme: "https", Host: storageHost, Path: resource, RawQuery: q.Encode()}
	return u.String(), nil
}

func (s *signer) sign(payload string) (string, error) {
	digest := sha256.Sum256([]byte(payload))
	raw, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("invalid private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, errors.New("service account key is not rsa")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New("unsupported private key format")
	}
	return key, nil
}
