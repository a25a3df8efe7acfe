package ingress

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conductor-run/conductor/pkg/orcherr"
)

// handleArtifactDownload handles GET /v1/artifacts/:id. Not named in spec
// §6's Ingress API table, but a natural completion of the Artifact type
// (spec §3) once pkg/artifact exists: an id returned in a tool observation
// is otherwise unreachable by any caller.
func (s *Server) handleArtifactDownload(c *gin.Context) {
	if s.artifacts == nil {
		writeError(c, orcherr.New(orcherr.CodeInvalidRequest, "artifact storage is not configured", false))
		return
	}

	id := c.Param("id")
	if id == "" {
		badRequest(c, "artifact id is required")
		return
	}

	meta, data, err := s.artifacts.Fetch(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+meta.Filename+`"`)
	c.Data(http.StatusOK, meta.MediaType, data)
}
