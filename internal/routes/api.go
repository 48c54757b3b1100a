package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupFallbackHandlers answers unknown paths with 404 and known paths hit
// with the wrong method with 405, both as JSON.
func SetupFallbackHandlers(router *gin.Engine) {
	router.HandleMethodNotAllowed = true

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
		})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":   "Method Not Allowed",
			"message": c.Request.Method + " is not supported on this resource",
			"path":    c.Request.URL.Path,
		})
	})
}
