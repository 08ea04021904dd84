// Command esignsign is a standalone CLI that embeds a CAdES-detached PAdES
// signature into a single PDF file, exercising components A/C/D/
// internal/signpipeline directly without the envelope/task machinery —
// grounded on the teacher's own cli/sign.go flag layout and
// LoadCertificatesAndKey, adapted onto internal/signpipeline.Pipeline and
// internal/cades.Signer instead of the teacher's sign.SignContext.
package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/esignhq/esign/internal/cades"
	"github.com/esignhq/esign/internal/pdfwriter"
	"github.com/esignhq/esign/internal/signpipeline"
)

func main() {
	flags := flag.NewFlagSet("esignsign", flag.ExitOnError)

	name := flags.String("name", "", "Name of the signatory")
	location := flags.String("location", "", "Location of the signatory")
	reason := flags.String("reason", "", "Reason for signing")
	contact := flags.String("contact", "", "Contact information for the signatory")
	tsaURL := flags.String("tsa", "", "RFC 3161 timestamp authority URL (omitted disables timestamping)")

	flags.Usage = func() {
		fmt.Printf("Usage: %s [options] <input.pdf> <output.pdf> <certificate.pem> <private_key.pem> [chain.pem]\n\n", os.Args[0])
		fmt.Println("Embeds a CAdES-detached PAdES signature into a PDF.")
		fmt.Println("\nOptions:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if flags.NArg() < 4 {
		flags.Usage()
		os.Exit(1)
	}

	input := flags.Arg(0)
	output := flags.Arg(1)
	certPath := flags.Arg(2)
	keyPath := flags.Arg(3)
	var chainPath string
	if flags.NArg() > 4 {
		chainPath = flags.Arg(4)
	}

	if err := run(input, output, certPath, keyPath, chainPath, *name, *location, *reason, *contact, *tsaURL); err != nil {
		log.Fatal(err)
	}
	log.Println("signed PDF written to " + output)
}

func run(input, output, certPath, keyPath, chainPath, name, location, reason, contact, tsaURL string) error {
	cert, key, chain, err := loadCertificateAndKey(certPath, keyPath, chainPath)
	if err != nil {
		return fmt.Errorf("load certificate/key: %w", err)
	}

	original, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	signer := &cades.Signer{
		Certificate:      cert,
		CertificateChain: chain,
		Key:              key,
		DigestAlgorithm:  crypto.SHA256,
	}
	if tsaURL != "" {
		signer.TSA = &cades.TimestampClient{URL: tsaURL}
	}

	pipeline := &signpipeline.Pipeline{Signer: signer}
	info := pdfwriter.SignatureInfo{
		Name:        name,
		Location:    location,
		Reason:      reason,
		ContactInfo: contact,
	}

	result, err := pipeline.Apply(original, nil, info, time.Now())
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	if err := os.WriteFile(output, result.Bytes, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func loadCertificateAndKey(certPath, keyPath, chainPath string) (*x509.Certificate, crypto.Signer, []*x509.Certificate, error) {
	cert, err := loadCertificate(certPath)
	if err != nil {
		return nil, nil, nil, err
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read private key: %w", err)
	}
	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil {
		return nil, nil, nil, errors.New("failed to parse PEM block containing the private key")
	}
	key, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse private key: %w", err)
	}

	var chain []*x509.Certificate
	if chainPath != "" {
		chainData, err := os.ReadFile(chainPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read chain: %w", err)
		}
		rest := chainData
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("parse chain certificate: %w", err)
			}
			chain = append(chain, c)
		}
	}

	return cert, key, chain, nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block != nil {
		return x509.ParseCertificate(block.Bytes)
	}
	if len(data) == 0 {
		return nil, errors.New("certificate data is empty")
	}
	return x509.ParseCertificate(data)
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.New("unsupported private key format")
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	default:
		return nil, errors.New("unsupported PKCS8 private key type")
	}
}
