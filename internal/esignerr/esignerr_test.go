package esignerr_test

import (
	"errors"
	"testing"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := esignerr.New(esignerr.NotFound, "store.GetTemplate", errors.New("no rows"))
	require.Equal(t, esignerr.NotFound, esignerr.KindOf(err))

	wrapped := errors.New("context: " + err.Error())
	require.Equal(t, esignerr.Unknown, esignerr.KindOf(wrapped))
}

func TestNewNilErr(t *testing.T) {
	require.Nil(t, esignerr.New(esignerr.StorageError, "op", nil))
}

func TestErrorf(t *testing.T) {
	err := esignerr.Errorf(esignerr.InvalidInput, "httpapi.parseField", "unknown field %q", "foo")
	require.Equal(t, esignerr.InvalidInput, esignerr.KindOf(err))
	require.Contains(t, err.Error(), "unknown field")
}
