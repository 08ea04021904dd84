package httpapi

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/typeid"
)

// serveStatic implements GET /static/:path (spec.md §6): public static
// files, served straight from d.StaticDir.
func (d *Deps) serveStatic(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	if d.StaticDir == "" || rel == "" {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(filepath.Join(d.StaticDir, filepath.Clean("/"+rel)))
}

// serveFile implements GET /files/:path?key=… (spec.md §6): HMAC-gated
// access to a stored PDF revision, 403 on bad MAC or expiry. A successful
// read writes a Downloaded log entry when the path matches an envelope's
// current revision.
func (d *Deps) serveFile(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	key := c.Query("key")

	if err := d.FilesSigner.Verify(path, key, time.Now()); err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	data, err := d.Files.Get(ctx, path)
	if err != nil {
		abort(c, err)
		return
	}

	if eid, rid, ok := parseDownloadRefs(c); ok {
		entry := &model.EnvelopeLog{
			ID:          typeid.New[typeid.LogPrefix](),
			EnvelopeID:  eid,
			EntryType:   model.EntryDownloaded,
			IPAddress:   collapseNAT64(c.ClientIP(), d.NAT64Net),
			UserAgent:   c.Request.UserAgent(),
			CurrentFile: path,
		}
		if !rid.IsNil() {
			entry.RecipientID = &rid
		}
		// Best-effort: a logging failure must not block the download itself.
		_ = d.Store.AppendLog(ctx, entry)
	}

	c.Data(http.StatusOK, "application/pdf", data)
}

// parseDownloadRefs extracts optional envelope/recipient ids the caller may
// pass as query parameters alongside the signed file key, so downloads can
// be attributed to an envelope in the audit log.
func parseDownloadRefs(c *gin.Context) (typeid.Envelope, typeid.Recipient, bool) {
	eidStr := c.Query("envelope_id")
	if eidStr == "" {
		return typeid.Envelope{}, typeid.Recipient{}, false
	}
	eid, err := typeid.Parse[typeid.EnvelopePrefix](eidStr)
	if err != nil {
		return typeid.Envelope{}, typeid.Recipient{}, false
	}
	ridStr := c.Query("recipient_id")
	if ridStr == "" {
		return eid, typeid.Recipient{}, true
	}
	rid, err := typeid.Parse[typeid.RecipientPrefix](ridStr)
	if err != nil {
		return eid, typeid.Recipient{}, true
	}
	return eid, rid, true
}
