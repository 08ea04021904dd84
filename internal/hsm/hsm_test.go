package hsm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/esignhq/esign/internal/hsm"
)

// TestOpenRequiresModulePath checks the one precondition this package can
// verify without a real PKCS#11 module present: an empty path is rejected
// before any pkcs11.New/Initialize call is attempted.
func TestOpenRequiresModulePath(t *testing.T) {
	_, err := hsm.Open("", "token", "key", "1234", nil)
	require.Error(t, err)
}
