package httpapi

import (
	"github.com/gin-gonic/gin"
)

// roleViewEnvelopes and roleSendEnvelopes are the two OIDC roles spec.md §6
// names.
const (
	roleViewEnvelopes = "view-envelopes"
	roleSendEnvelopes = "send-envelopes"
)

// NewRouter builds the gin.Engine implementing spec.md §6's HTTP surface,
// grounded on rendis-doc-assembly's core/internal/infra/server/http.go
// route-registration style.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gin.Logger())

	r.GET("/template", d.Auth.RequireRole(roleViewEnvelopes), d.listTemplates)
	r.GET("/template/:tid", d.Auth.RequireRole(roleSendEnvelopes), d.getTemplate)
	r.POST("/template/:tid/create", d.Auth.RequireRole(roleSendEnvelopes), d.createEnvelope)

	r.GET("/envelope", d.Auth.RequireRole(roleViewEnvelopes), d.listEnvelopes)
	r.GET("/envelope/:eid", d.Auth.RequireRole(roleViewEnvelopes), d.getEnvelope)
	r.GET("/envelope/:eid/sign/:rid", d.openSigningLink)
	r.POST("/envelope/:eid/sign/:rid/create", d.submitSignature)

	r.GET("/static/*path", d.serveStatic)
	r.GET("/files/*path", d.serveFile)

	return r
}
