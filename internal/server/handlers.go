package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/vk/sweeptrack/internal/artifact"
	"github.com/vk/sweeptrack/internal/tracking"
)

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "OK\n")
}

func (s *Server) listExperiments(c *gin.Context) {
	exps, err := s.store.ListExperiments(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiments": exps})
}

func (s *Server) getExperiment(c *gin.Context) {
	exp, err := s.store.GetExperiment(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiment": exp})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := runs[:0]
		for _, r := range runs {
			if string(r.Status) == status {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartTime.After(runs[j].StartTime) })
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) getMetricHistory(c *gin.Context) {
	history, err := s.store.GetMetricHistory(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": history})
}

func (s *Server) listArtifacts(c *gin.Context) {
	ctx := c.Request.Context()
	run, err := s.store.GetRun(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	repo, err := artifact.Open(run.Info.ArtifactURI)
	if err != nil {
		s.fail(c, err)
		return
	}
	files, err := repo.List(ctx, c.Query("path"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"root_uri": run.Info.ArtifactURI, "files": files})
}

// fail maps store errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tracking.ErrInvalidKey), errors.Is(err, artifact.ErrInvalidPath), errors.Is(err, artifact.ErrUnsupportedScheme):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed.", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
