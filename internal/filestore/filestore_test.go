package filestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/esignhq/esign/internal/filestore"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Put(context.Background(), []byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NotEmpty(t, path)

	data, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 fake"), data)
}

func TestLocalStoreGetMissing(t *testing.T) {
	store, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope.pdf")
	require.Error(t, err)
}

// TestSignerWindow mirrors spec.md §8's HMAC file key example: a
// files_key of 32 zero bytes and path "base.pdf", minted at t=1_700_000_000
// with a 5-minute window, must validate at t=1_700_000_300 and expire by
// t=1_700_000_600.
func TestSignerWindow(t *testing.T) {
	key := make([]byte, 32)
	signer := filestore.NewSigner(key)

	mintTime := time.Unix(1_700_000_000, 0)
	urlKey := signer.Sign("base.pdf", mintTime)

	require.NoError(t, signer.Verify("base.pdf", urlKey, time.Unix(1_700_000_300, 0)))
	require.Error(t, signer.Verify("base.pdf", urlKey, time.Unix(1_700_000_600, 0)))
}

func TestSignerRejectsWrongPath(t *testing.T) {
	signer := filestore.NewSigner([]byte("k"))
	urlKey := signer.Sign("base.pdf", time.Unix(1_700_000_000, 0))
	require.Error(t, signer.Verify("other.pdf", urlKey, time.Unix(1_700_000_000, 0)))
}
