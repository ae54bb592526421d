package attachments

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

const gcsScheme = "gs://"

// ObjectStore is the bucket surface proof references resolve against.
type ObjectStore interface {
	SignedReadURL(bucket, object string, ttl time.Duration) (string, error)
	ObjectExists(ctx context.Context, bucket, object string) (bool, error)
}

// Resolver turns stored proof references into links a client can open and
// checks gs:// references before they are persisted. Other references (plain
// receipts, external URLs) pass through untouched.
type Resolver struct {
	store ObjectStore
	ttl   time.Duration
}

// NewResolver resolves gs:// references against store. A nil store disables
// both signing and existence checks.
func NewResolver(store ObjectStore, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Resolver{store: store, ttl: ttl}
}

// Resolve returns a display URL for ref.
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !r.handles(ref) {
		return ref, nil
	}
	bucket, object, err := splitGCSRef(ref)
	if err != nil {
		return "", err
	}
	return r.store.SignedReadURL(bucket, object, r.ttl)
}

// ResolvePtr resolves an optional reference, returning nil when ref is nil.
func (r *Resolver) ResolvePtr(ref *string) (*string, error) {
	if ref == nil {
		return nil, nil
	}
	url, err := r.Resolve(*ref)
	if err != nil {
		return nil, err
	}
	return &url, nil
}

// Verify rejects a gs:// reference whose object was never uploaded.
func (r *Resolver) Verify(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if !r.handles(ref) {
		return nil
	}
	bucket, object, err := splitGCSRef(ref)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed proof reference")
	}
	ok, err := r.store.ObjectExists(ctx, bucket, object)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check proof attachment")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "proof attachment not found").
			WithDetails(map[string]any{"proof_ref": ref})
	}
	return nil
}

func (r *Resolver) handles(ref string) bool {
	return ref != "" && r != nil && r.store != nil && strings.HasPrefix(ref, gcsScheme)
}

func splitGCSRef(ref string) (bucket, object string, err error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(ref, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed attachment reference %q", ref)
	}
	return bucket, object, nil
}
