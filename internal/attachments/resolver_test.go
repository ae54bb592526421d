package attachments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

type fakeSigner struct {
	bucket, object string
	ttl            time.Duration
	err            error
	missing        map[string]bool
	checkErr       error
}

func (f *fakeSigner) ObjectExists(_ context.Context, bucket, object string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return !f.missing[bucket+"/"+object], nil
}

func (f *fakeSigner) SignedReadURL(bucket, object string, ttl time.Duration) (string, error) {
	f.bucket, f.object, f.ttl = bucket, object, ttl
	if f.err != nil {
		return "", f.err
	}
	return "https://signed.example/" + bucket + "/" + object, nil
}

func TestResolveSignsGCSReferences(t *testing.T) {
	signer := &fakeSigner{}
	r := NewResolver(signer, 5*time.Minute)

	url, err := r.Resolve("gs://proofs/orders/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/proofs/orders/a.jpg", url)
	assert.Equal(t, "proofs", signer.bucket)
	assert.Equal(t, "orders/a.jpg", signer.object)
	assert.Equal(t, 5*time.Minute, signer.ttl)
}

func TestResolvePassesThroughOtherReferences(t *testing.T) {
	r := NewResolver(&fakeSigner{}, 0)
	for _, ref := range []string{"https://cdn.example/a.jpg", "receipt-123", ""} {
		url, err := r.Resolve(ref)
		require.NoError(t, err)
		assert.Equal(t, ref, url)
	}

	unsigned := NewResolver(nil, 0)
	url, err := unsigned.Resolve("gs://proofs/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "gs://proofs/a.jpg", url)
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver(&fakeSigner{}, 0)
	_, err := r.Resolve("gs://bucket-only")
	assert.Error(t, err)

	failing := NewResolver(&fakeSigner{err: errors.New("no key")}, 0)
	_, err = failing.Resolve("gs://proofs/a.jpg")
	assert.Error(t, err)
}

func TestResolvePtr(t *testing.T) {
	r := NewResolver(nil, 0)
	got, err := r.ResolvePtr(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	ref := "receipt-9"
	got, err = r.ResolvePtr(&ref)
	require.NoError(t, err)
	assert.Equal(t, "receipt-9", *got)
}

func TestVerifyChecksGCSObjects(t *testing.T) {
	ctx := context.Background()
	store := &fakeSigner{missing: map[string]bool{"proofs/orders/gone.jpg": true}}
	r := NewResolver(store, 0)

	require.NoError(t, r.Verify(ctx, "gs://proofs/orders/a.jpg"))
	require.NoError(t, r.Verify(ctx, "receipt-123"))

	err := r.Verify(ctx, "gs://proofs/orders/gone.jpg")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	err = r.Verify(ctx, "gs://bucket-only")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	store.checkErr = errors.New("storage unavailable")
	err = r.Verify(ctx, "gs://proofs/orders/a.jpg")
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	require.NoError(t, NewResolver(nil, 0).Verify(ctx, "gs://proofs/orders/gone.jpg"))
}
