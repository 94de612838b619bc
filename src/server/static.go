package server

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed static
var staticFiles embed.FS

func assetsFS() http.FileSystem {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// handleIndex writes index.html directly; serving it through the file
// server would redirect "/index.html" back to "/".
func (s *Server) handleIndex(c *gin.Context) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "index not found")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}
