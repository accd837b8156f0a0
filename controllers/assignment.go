package controllers

import (
	"net/http"

	"peer-review-api/config"
	"peer-review-api/models"
	"peer-review-api/services"

	"github.com/gin-gonic/gin"
)

// PreassignEditors creates the ordered preassignment list for a submission.
func PreassignEditors(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		EditorIDs []int `json:"editor_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := services.NewAssignmentService(nil, nil, nil, nil)
	assignments, err := svc.Preassign(id, currentUserID(c), req.EditorIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assignments": assignments})
}

// SendAssignmentInvitation sends one preassigned invitation out.
func SendAssignmentInvitation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	svc := services.NewAssignmentService(nil, nil, nil, nil)
	assignment, err := svc.SendInvitation(id, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": assignment})
}

// RespondToAssignment registers the invited fellow's accept or decline.
func RespondToAssignment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Accept        bool    `json:"accept"`
		RefusalReason *string `json:"refusal_reason,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := services.NewAssignmentService(nil, nil, nil, nil)
	assignment, err := svc.Respond(id, currentUserID(c), req.Accept, req.RefusalReason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": assignment})
}

// VolunteerAsEditor lets a pool fellow take charge directly.
func VolunteerAsEditor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	svc := services.NewAssignmentService(nil, nil, nil, nil)
	assignment, err := svc.Volunteer(id, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assignment": assignment})
}

// ReassignEditor is the administrative editor replacement.
func ReassignEditor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		NewEditorID int `json:"new_editor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := services.NewAssignmentService(nil, nil, nil, nil)
	assignment, err := svc.Reassign(id, req.NewEditorID, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": assignment})
}

// ListAssignments returns the assignment rows of a submission.
func ListAssignments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var assignments []models.EditorialAssignment
	if err := config.DB.Preload("Editor").
		Where("submission_id = ?", id).
		Order("invitation_order ASC").
		Find(&assignments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch assignments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments, "total": len(assignments)})
}
