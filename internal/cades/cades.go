// Package cades builds a detached CAdES-BES (or RFC 3161 timestamp) CMS
// signature over a PDF's signed byte ranges and patches it, along with the
// final /ByteRange array, into an already-finalized pdfwriter.Result.
//
// The construction mirrors digitorus-pdfsign's sign/pdfsignature.go: a
// pkcs7.SignedData with a signing-certificate-v2 signed attribute, detached
// content, and an optional unsigned RFC 3161 timestamp attribute.
package cades

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/pdfwriter"
)

// oidSigningCertificateV2 is the signed attribute spec §4.D step 3
// requires; oidSigningCertificate is its SHA-1-era predecessor, used only
// when the digest algorithm is SHA-1 (matching the teacher's fallback).
var (
	oidSigningCertificateV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
	oidSigningCertificate   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}
	oidTimestampToken       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
)

// Signer holds everything needed to produce a detached CMS signature for
// one signing operation: the end-entity certificate and key (or HSM-backed
// crypto.Signer), the rest of the chain, and the digest algorithm to use.
type Signer struct {
	Certificate      *x509.Certificate
	CertificateChain []*x509.Certificate
	Key              crypto.Signer
	DigestAlgorithm  crypto.Hash

	// TSA, if set, is consulted for an RFC 3161 timestamp token attached as
	// an unsigned attribute (spec.md §4.D / §9 open question).
	TSA *TimestampClient
}

// TimestampClient is the minimal RFC 3161 client surface a Signer needs;
// NewTimestampClient returns the concrete HTTP-backed implementation.
type TimestampClient struct {
	URL      string
	Username string
	Password string
}

// SignedRange is the result of signing a Document's /Contents and
// /ByteRange placeholders: the final byte array covering the document and
// the CMS (or timestamp token) bytes to hex-encode into /Contents.
type SignedRange struct {
	ByteRange [4]int64
	CMS       []byte
}

// byteRangesFor computes [a, b, c, d] for a /Contents hex string occupying
// [contentsStart, contentsEnd) within a document of length total: the bytes
// signed are everything except the hex string itself.
func byteRangesFor(contentsStart, contentsEnd, total int64) [4]int64 {
	return [4]int64{0, contentsStart, contentsEnd, total - contentsEnd}
}

// SignDocument locates the tracked /Contents and /ByteRange spans for
// sigID in a finalized pdfwriter.Result, computes the real byte range,
// constructs (and, for a TimeStampSignature, fetches) the CMS/timestamp
// bytes over the signed ranges, and patches both the /Contents hex digits
// and the /ByteRange array literal directly into result.Bytes in place.
//
// isTimestamp selects an RFC 3161 DocTimeStamp (no pkcs7 SignedData, no
// signing-certificate-v2 attribute) over a regular CAdES signature.
func (s *Signer) SignDocument(result *pdfwriter.Result, sigID pdfwriter.ObjectID, isTimestamp bool) error {
	contentsRange, ok := result.ContentRanges[pdfwriter.TrackedKey{ID: sigID, Key: "Contents"}]
	if !ok {
		return esignerr.Errorf(esignerr.PdfError, "cades.SignDocument", "no tracked Contents range for object %d", sigID)
	}
	byteRangeRange, ok := result.ContentRanges[pdfwriter.TrackedKey{ID: sigID, Key: "ByteRange"}]
	if !ok {
		return esignerr.Errorf(esignerr.PdfError, "cades.SignDocument", "no tracked ByteRange range for object %d", sigID)
	}

	// The hex string's content (excluding the surrounding < >) starts one
	// byte after contentsRange.Start and ends one byte before its End.
	hexStart := contentsRange.Start + 1
	hexEnd := contentsRange.End - 1

	total := int64(len(result.Bytes))
	br := byteRangesFor(hexStart, hexEnd, total)

	signContent := make([]byte, 0, br[1]+br[3])
	signContent = append(signContent, result.Bytes[br[0]:br[0]+br[1]]...)
	signContent = append(signContent, result.Bytes[br[2]:br[2]+br[3]]...)

	var raw []byte
	var err error
	if isTimestamp {
		raw, err = s.timestampToken(signContent)
	} else {
		raw, err = s.buildSignedData(signContent)
	}
	if err != nil {
		return err
	}

	slotBytes := hexEnd - hexStart
	hexDigits := hex.EncodeToString(raw)
	if int64(len(hexDigits)) > slotBytes {
		return esignerr.Errorf(esignerr.SignatureTooLarge, "cades.SignDocument",
			"signature is %d hex digits, slot reserves %d", len(hexDigits), slotBytes)
	}
	// Pad with trailing zeros; PDF readers ignore the unused digits within
	// the declared /Contents length because /ByteRange excludes them.
	padded := make([]byte, slotBytes)
	copy(padded, hexDigits)
	for i := len(hexDigits); i < len(padded); i++ {
		padded[i] = '0'
	}
	copy(result.Bytes[hexStart:hexEnd], padded)

	brLiteral := pdfwriter.FormatByteRange(br[0], br[1], br[2], br[3])
	if int64(len(brLiteral)) != byteRangeRange.End-byteRangeRange.Start {
		return esignerr.Errorf(esignerr.PdfError, "cades.SignDocument", "byte range literal width mismatch")
	}
	copy(result.Bytes[byteRangeRange.Start:byteRangeRange.End], brLiteral)

	return nil
}

// buildSignedData constructs a detached pkcs7.SignedData over signContent,
// including the signing-certificate-v2 attribute, and, if s.TSA is set,
// fetches and attaches an unsigned RFC 3161 timestamp over the resulting
// signature bytes (spec.md §4.D, §9 open question (a): v2 only).
func (s *Signer) buildSignedData(signContent []byte) ([]byte, error) {
	digest := s.DigestAlgorithm
	if digest == 0 {
		digest = crypto.SHA256
	}

	signedData, err := pkcs7.NewSignedData(signContent)
	if err != nil {
		return nil, esignerr.New(esignerr.PdfError, "cades.buildSignedData", fmt.Errorf("new signed data: %w", err))
	}
	signedData.SetDigestAlgorithm(oidFromHash(digest))

	signingCertAttr, err := signingCertificateAttribute(s.Certificate, digest)
	if err != nil {
		return nil, esignerr.New(esignerr.PdfError, "cades.buildSignedData", err)
	}

	signerConfig := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{*signingCertAttr},
	}

	var chain []*x509.Certificate
	if len(s.CertificateChain) > 0 {
		chain = s.CertificateChain
	}

	if err := signedData.AddSignerChain(s.Certificate, s.Key, chain, signerConfig); err != nil {
		return nil, esignerr.New(esignerr.PdfError, "cades.buildSignedData", fmt.Errorf("add signer chain: %w", err))
	}
	signedData.Detach()

	if s.TSA != nil && s.TSA.URL != "" {
		data := signedData.GetSignedData()
		tsResp, err := s.TSA.request(data.SignerInfos[0].EncryptedDigest, digest)
		if err != nil {
			return nil, esignerr.New(esignerr.TsaFailure, "cades.buildSignedData", err)
		}
		ts, err := timestamp.ParseResponse(tsResp)
		if err != nil {
			return nil, esignerr.New(esignerr.TsaFailure, "cades.buildSignedData", fmt.Errorf("parse timestamp response: %w", err))
		}
		tsAttr := pkcs7.Attribute{
			Type:  oidTimestampToken,
			Value: asn1.RawValue{FullBytes: ts.RawToken},
		}
		if err := data.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{tsAttr}); err != nil {
			return nil, esignerr.New(esignerr.PdfError, "cades.buildSignedData", err)
		}
	}

	out, err := signedData.Finish()
	if err != nil {
		return nil, esignerr.New(esignerr.PdfError, "cades.buildSignedData", err)
	}
	return out, nil
}

// timestampToken fetches a bare RFC 3161 timestamp token over signContent,
// for a DocTimeStamp signature field (spec.md §4.D's TimeStampSignature
// branch: /Contents is the raw TimeStampToken, not a pkcs7 SignedData).
func (s *Signer) timestampToken(signContent []byte) ([]byte, error) {
	if s.TSA == nil || s.TSA.URL == "" {
		return nil, esignerr.Errorf(esignerr.TsaFailure, "cades.timestampToken", "no TSA configured for timestamp signature")
	}
	digest := s.DigestAlgorithm
	if digest == 0 {
		digest = crypto.SHA256
	}
	resp, err := s.TSA.request(signContent, digest)
	if err != nil {
		return nil, esignerr.New(esignerr.TsaFailure, "cades.timestampToken", err)
	}
	ts, err := timestamp.ParseResponse(resp)
	if err != nil {
		return nil, esignerr.New(esignerr.TsaFailure, "cades.timestampToken", fmt.Errorf("parse timestamp response: %w", err))
	}
	return ts.RawToken, nil
}

func oidFromHash(h crypto.Hash) asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA1:
		return asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	case crypto.SHA384:
		return asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	case crypto.SHA512:
		return asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	default:
		return asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1} // SHA-256
	}
}
