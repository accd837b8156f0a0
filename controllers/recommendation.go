package controllers

import (
	"net/http"

	"peer-review-api/services"

	"github.com/gin-gonic/gin"
)

func votingService() *services.VotingService {
	return services.NewVotingService(nil, nil, nil, nil)
}

// FormulateRecommendation records the editor-in-charge's recommendation.
func FormulateRecommendation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var content services.RecommendationContent
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := votingService().Formulate(id, currentUserID(c), content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recommendation": rec})
}

// PrepareForVoting locks the eligible voter set and opens voting.
func PrepareForVoting(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		EligibleIDs []int `json:"eligible_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := votingService().PrepareForVoting(id, currentUserID(c), req.EligibleIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Recommendation put to voting"})
}

// CastVote records or replaces the caller's ballot.
func CastVote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vote, err := votingService().CastVote(id, currentUserID(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vote": vote})
}

// GetVoteTallies returns the aggregated ballots on a recommendation.
func GetVoteTallies(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tally, err := votingService().Tallies(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tally": tally})
}

// ReformulateRecommendation replaces the active recommendation with a new
// version.
func ReformulateRecommendation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var content services.RecommendationContent
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := votingService().Reformulate(id, currentUserID(c), content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recommendation": rec})
}

// AddRecommendationRemark attaches a free remark during voting.
func AddRecommendationRemark(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	remark, err := votingService().AddRemark(id, currentUserID(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"remark": remark})
}

// GetActiveRecommendation returns the governing recommendation of a
// submission.
func GetActiveRecommendation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	rec, err := votingService().ActiveRecommendation(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendation": rec})
}
