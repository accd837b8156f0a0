package controllers

import (
	"net/http"

	"peer-review-api/services"

	"github.com/gin-gonic/gin"
)

// SubmitReport creates or updates the referee's draft report.
func SubmitReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var content services.ReportContent
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := refereeingService().SubmitReport(id, currentUserID(c), content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// FinalizeReport moves the draft report to awaiting-vetting.
func FinalizeReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	report, err := refereeingService().FinalizeReport(id, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// VetReport accepts or refuses a delivered report.
func VetReport(c *gin.Context) {
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

	report, err := refereeingService().VetReport(id, currentUserID(c), req.Accept, req.RefusalReason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// ListVettedReports returns the vetted reports of a submission.
func ListVettedReports(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reports, err := refereeingService().VettedReports(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "total": len(reports)})
}
