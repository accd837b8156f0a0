package controllers

import (
	"net/http"

	"peer-review-api/config"
	"peer-review-api/models"
	"peer-review-api/services"

	"github.com/gin-gonic/gin"
)

func refereeingService() *services.RefereeingService {
	return services.NewRefereeingService(nil, nil, nil, nil, nil)
}

// ChooseCycle selects the refereeing cycle for the current round.
func ChooseCycle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Cycle string `json:"cycle" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := refereeingService().ChooseCycle(id, currentUserID(c), req.Cycle); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Refereeing cycle chosen"})
}

// InviteReferee creates or reactivates a referee invitation.
func InviteReferee(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Referee       services.RefereeDetails `json:"referee" binding:"required"`
		AutoReminders *bool                   `json:"auto_reminders,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	autoReminders := true
	if req.AutoReminders != nil {
		autoReminders = *req.AutoReminders
	}

	invitation, err := refereeingService().InviteReferee(id, currentUserID(c), req.Referee, autoReminders)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invitation": invitation})
}

// RespondToRefereeInvitation is the public endpoint behind the referee's
// personal link; no login required, the key is the credential.
func RespondToRefereeInvitation(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invitation key"})
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

	invitation, err := refereeingService().RespondToInvitation(key, req.Accept, req.RefusalReason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": invitation})
}

// CancelRefereeInvitation deactivates an invitation.
func CancelRefereeInvitation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := refereeingService().CancelInvitation(id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invitation cancelled"})
}

// RemindReferee sends a manual reminder.
func RemindReferee(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := refereeingService().RemindReferee(id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminder sent"})
}

// SetAutoReminders toggles automatic reminders on an invitation.
func SetAutoReminders(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Allowed *bool `json:"allowed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := refereeingService().SetAutoReminders(id, currentUserID(c), *req.Allowed); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Auto reminders updated"})
}

// ListInvitations returns the referee invitations of a submission.
func ListInvitations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var invitations []models.RefereeInvitation
	if err := config.DB.Where("submission_id = ?", id).
		Order("date_invited ASC").
		Find(&invitations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invitations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations, "total": len(invitations)})
}

// CloseRefereeingRound stops new reports.
func CloseRefereeingRound(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := refereeingService().CloseRound(id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Refereeing round closed"})
}

// ExtendReportingDeadline pushes the reporting deadline forward.
func ExtendReportingDeadline(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Days int `json:"days" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := refereeingService().ExtendDeadline(id, currentUserID(c), req.Days); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reporting deadline extended"})
}

// RestartRefereeingCycle is the administrative escalation after failed voting
// or a successful appeal.
func RestartRefereeingCycle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := refereeingService().RestartCycle(id, currentUserID(c), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Refereeing cycle restarted"})
}
