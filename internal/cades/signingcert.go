package cades

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// signingCertificateAttribute builds the ESSCertIDv2-based
// signing-certificate-v2 signed attribute (RFC 5035), binding the
// signature to cert's hash under digest. Falls back to the SHA-1-era
// signing-certificate attribute (RFC 2634) only when digest is SHA-1,
// matching the teacher's behavior.
func signingCertificateAttribute(cert *x509.Certificate, digest crypto.Hash) (*pkcs7.Attribute, error) {
	hash := digest.New()
	hash.Write(cert.Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate(V2)
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // []ESSCertID(V2)
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID(V2)
				if digest != crypto.SHA1 && digest != crypto.SHA256 {
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(oidFromHash(digest))
					})
				}
				b.AddASN1OctetString(hash.Sum(nil)) // certHash
			})
		})
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	attr := pkcs7.Attribute{
		Type:  oidSigningCertificateV2,
		Value: asn1.RawValue{FullBytes: der},
	}
	if digest == crypto.SHA1 {
		attr.Type = oidSigningCertificate
	}
	return &attr, nil
}
