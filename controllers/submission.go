package controllers

import (
	"net/http"

	"peer-review-api/services"

	"github.com/gin-gonic/gin"
)

// CreateSubmission files a new manuscript.
func CreateSubmission(c *gin.Context) {
	var input services.SubmissionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := services.NewSubmissionService(nil, nil)
	sub, err := svc.Create(currentUserID(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"submission": sub})
}

// ResubmitSubmission files a revised version in an existing thread.
func ResubmitSubmission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.SubmissionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := services.NewSubmissionService(nil, nil)
	sub, err := svc.Resubmit(id, currentUserID(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"submission": sub})
}

// GetSubmission returns one submission with its relations and event log.
func GetSubmission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	svc := services.NewSubmissionService(nil, nil)
	sub, err := svc.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": sub})
}

// ListSubmissions returns current submissions, optionally filtered by status.
func ListSubmissions(c *gin.Context) {
	svc := services.NewSubmissionService(nil, nil)
	subs, err := svc.List(c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs, "total": len(subs)})
}

// GetThread returns all versions of a manuscript thread.
func GetThread(c *gin.Context) {
	threadID := c.Param("thread_id")
	if threadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid thread_id"})
		return
	}

	svc := services.NewSubmissionService(nil, nil)
	subs, err := svc.Thread(threadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": subs, "total": len(subs)})
}

// SetFellowPool replaces the submission's fellow pool.
func SetFellowPool(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		FellowIDs []int `json:"fellow_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := services.NewSubmissionService(nil, nil)
	if err := svc.SetFellowPool(id, currentUserID(c), req.FellowIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Fellow pool updated"})
}
