package cades

import (
	"bytes"
	"crypto"
	"fmt"
	"io"
	"net/http"

	"github.com/digitorus/timestamp"

	"github.com/esignhq/esign/internal/esignerr"
)

// NewTimestampClient returns a TimestampClient for the given RFC 3161 TSA
// endpoint, with optional HTTP basic auth (spec.md §4.D, §6 signing.tsa_*).
func NewTimestampClient(url, username, password string) *TimestampClient {
	return &TimestampClient{URL: url, Username: username, Password: password}
}

// request sends an RFC 3161 timestamp request over data (hashed with
// digest) and returns the raw DER timestamp response body.
func (c *TimestampClient) request(data []byte, digest crypto.Hash) ([]byte, error) {
	tsRequest, err := timestamp.CreateRequest(bytes.NewReader(data), &timestamp.RequestOptions{
		Hash:         digest,
		Certificates: true,
	})
	if err != nil {
		return nil, esignerr.New(esignerr.TsaFailure, "cades.TimestampClient.request", fmt.Errorf("create request: %w", err))
	}

	req, err := http.NewRequest(http.MethodPost, c.URL, bytes.NewReader(tsRequest))
	if err != nil {
		return nil, esignerr.New(esignerr.TsaFailure, "cades.TimestampClient.request", fmt.Errorf("build request (%s): %w", c.URL, err))
	}
	req.Header.Set("Content-Type", "application/timestamp-query")
	req.Header.Set("Content-Transfer-Encoding", "binary")
	if c.Username != "" && c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, esignerr.New(esignerr.TsaFailure, "cades.TimestampClient.request", fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, esignerr.New(esignerr.TsaFailure, "cades.TimestampClient.request", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, esignerr.Errorf(esignerr.TsaFailure, "cades.TimestampClient.request",
			"non-success response (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
