package helpers

import (
	"bytes"
	"net/http"

	"talentbook-middleware/htmltemplates"
	"talentbook-middleware/models"

	"github.com/gin-gonic/gin"
)

const (
	NotFound                  = "not found"
	ServerError               = "server error"
	Unauthorized              = "unauthorized"
	OK                        = "OK"
	AccessControlAllowMethods = "Access-Control-Allow-Methods"
	AccessControlAllowHeaders = "Access-Control-Allow-Headers"
	CORSMethodsOptPost        = "OPTIONS, POST"
	CORSMethodsOptGet         = "OPTIONS, GET"
	CORSAllowedHeaders        = "Authorization, Content-Type"
)

// Simple404 sets a quick and easy 404 gin response
func Simple404(c *gin.Context) {
	c.Data(http.StatusNotFound, "text/plain", []byte(NotFound))
}

// Simple500 sets a quick and easy 500 gin response
func Simple500(c *gin.Context) {
	c.Data(http.StatusInternalServerError, "text/plain", []byte(ServerError))
}

// Simple403 is used whenever the JWT cookie is missing or rejected
func Simple403(c *gin.Context) {
	c.Data(http.StatusForbidden, "text/plain", []byte(Unauthorized))
}

// Simple200OK sets a quick and easy gin response, typically used for Options
// preflight CORS requests
func Simple200OK(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain", []byte(OK))
}

// SetCORSMethods sets the allowed methods and headers for CORS
func SetCORSMethods(c *gin.Context, methods string) {
	c.Header(AccessControlAllowMethods, methods)
	c.Header(AccessControlAllowHeaders, CORSAllowedHeaders)
}

// JSONError answers with the {"error": msg} body the checkout function
// clients expect
func JSONError(c *gin.Context, status int, msg string) {
	c.JSON(status, models.ErrorResponse{Error: msg})
}

// HTML renders a checkout page. The page is rendered into a buffer first so
// a template failure still produces a clean 500.
func HTML(c *gin.Context, status int, v htmltemplates.View) error {
	var buf bytes.Buffer
	if err := htmltemplates.Render(&buf, v); err != nil {
		Simple500(c)
		return err
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
	return nil
}
