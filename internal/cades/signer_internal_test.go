package cades

import (
	"crypto"
	"testing"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/require"

	"github.com/esignhq/esign/internal/testpki"
)

// TestBuildSignedDataParses white-box tests the CMS construction directly,
// before it is hex-encoded and padded into a fixed-width PDF slot, so the
// DER bytes can be parsed and verified without locating the real signature
// within the padded hex string.
func TestBuildSignedDataParses(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	defer pki.Close()
	key, cert := pki.IssueLeaf("Jane Doe")

	signer := &Signer{
		Certificate:      cert,
		CertificateChain: pki.Chain(),
		Key:              key,
		DigestAlgorithm:  crypto.SHA256,
	}

	signContent := []byte("the bytes covered by /ByteRange")
	der, err := signer.buildSignedData(signContent)
	require.NoError(t, err)

	p7, err := pkcs7.Parse(der)
	require.NoError(t, err)
	require.NoError(t, p7.Verify())
}

func TestSigningCertificateAttributeOID(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	defer pki.Close()
	_, cert := pki.IssueLeaf("Jane Doe")

	attr, err := signingCertificateAttribute(cert, crypto.SHA256)
	require.NoError(t, err)
	require.Equal(t, oidSigningCertificateV2.String(), attr.Type.String())
}
