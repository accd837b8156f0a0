package controllers

import (
	"net/http"

	"peer-review-api/services"

	"github.com/gin-gonic/gin"
)

func decisionService() *services.DecisionService {
	return services.NewDecisionService(nil, nil, nil, nil)
}

// FixEditorialDecision irreversibly fixes the decision on a voted
// recommendation.
func FixEditorialDecision(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Outcome         string `json:"outcome" binding:"required"`
		TargetJournalID int    `json:"target_journal_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := decisionService().FixDecision(id, currentUserID(c), req.Outcome, req.TargetJournalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": decision})
}

// AcceptPublicationOffer registers the authors' acceptance of the alternative
// journal offer.
func AcceptPublicationOffer(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	decision, err := decisionService().AcceptPublicationOffer(id, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": decision})
}

// WithdrawSubmission is the authors' pre-emption of the process.
func WithdrawSubmission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := decisionService().WithdrawSubmission(id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Submission withdrawn"})
}

// GetEditorialDecision returns the latest decision on a submission.
func GetEditorialDecision(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	decision, err := decisionService().DecisionForSubmission(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": decision})
}
