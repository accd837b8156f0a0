package controllers

import (
	"net/http"

	"peer-review-api/config"
	"peer-review-api/models"

	"github.com/gin-gonic/gin"
)

// ListJournals returns all journals.
func ListJournals(c *gin.Context) {
	var journals []models.Journal
	if err := config.DB.Order("code ASC").Find(&journals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch journals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"journals": journals, "total": len(journals)})
}

// GetJournal returns one journal.
func GetJournal(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var journal models.Journal
	if err := config.DB.First(&journal, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Journal not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"journal": journal})
}
