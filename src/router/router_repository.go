package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pyrohost/resticapi/src/repository"
	"github.com/pyrohost/resticapi/src/router/middleware"
)

// getStats returns the output of restic stats for the repository.
func getStats(c *gin.Context) {
	repo := middleware.ExtractRepository(c)

	stats, err := repo.Stats(c.Request.Context())
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getSnapshots returns every snapshot in the repository.
func getSnapshots(c *gin.Context) {
	repo := middleware.ExtractRepository(c)

	snapshots, err := repo.Snapshots(c.Request.Context())
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshots)
}

// deleteSnapshot forgets the snapshot and prunes the repository.
func deleteSnapshot(c *gin.Context) {
	repo := middleware.ExtractRepository(c)

	if err := repo.Forget(c.Request.Context(), c.Param("id")); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Snapshot deleted successfully"})
}

// postRestore restores a snapshot into a directory on this machine. The
// request blocks until restic has finished.
func postRestore(c *gin.Context) {
	repo := middleware.ExtractRepository(c)

	var data repository.RestoreRequest
	if err := c.ShouldBindJSON(&data); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	if err := repo.Restore(c.Request.Context(), data); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Snapshot restored successfully"})
}
