package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/typeid"
)

// listTemplates implements GET /template.
func (d *Deps) listTemplates(c *gin.Context) {
	tmpls, err := d.Store.ListTemplates(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": tmpls})
}

// getTemplate implements GET /template/:tid.
func (d *Deps) getTemplate(c *gin.Context) {
	id, err := typeid.Parse[typeid.TemplatePrefix](c.Param("tid"))
	if err != nil {
		abort(c, esignerr.New(esignerr.InvalidInput, "httpapi.getTemplate", err))
		return
	}
	tmpl, err := d.Store.GetTemplate(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}
