package routes

import (
	"peer-review-api/controllers"
	"peer-review-api/middleware"
	"peer-review-api/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", controllers.Login)

			// Referee responses go through the personal invitation key; the
			// key is the credential, no login required.
			public.POST("/referee-invitations/key/:key/respond", controllers.RespondToRefereeInvitation)

			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Peer Review API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Journals
			protected.GET("/journals", controllers.ListJournals)
			protected.GET("/journals/:id", controllers.GetJournal)

			// Notifications
			protected.GET("/notifications", controllers.ListNotifications)
			protected.GET("/notifications/unread-count", controllers.GetUnreadCount)
			protected.PUT("/notifications/:id/read", controllers.MarkNotificationRead)
			protected.PUT("/notifications/read-all", controllers.MarkAllNotificationsRead)

			// Submissions
			submissions := protected.Group("/submissions")
			{
				submissions.GET("", controllers.ListSubmissions)
				submissions.GET("/:id", controllers.GetSubmission)
				submissions.POST("", controllers.CreateSubmission)
				submissions.POST("/:id/resubmit", controllers.ResubmitSubmission)
				submissions.POST("/:id/withdraw", controllers.WithdrawSubmission)
				submissions.GET("/thread/:thread_id", controllers.GetThread)

				// Editorial administration
				submissions.PUT("/:id/fellows", middleware.RequireRole(models.RoleEditorialAdmin), controllers.SetFellowPool)
				submissions.POST("/:id/preassign", middleware.RequireRole(models.RoleEditorialAdmin), controllers.PreassignEditors)
				submissions.POST("/:id/reassign", middleware.RequireRole(models.RoleEditorialAdmin), controllers.ReassignEditor)
				submissions.POST("/:id/restart-cycle", middleware.RequireRole(models.RoleEditorialAdmin), controllers.RestartRefereeingCycle)
				submissions.POST("/:id/decision", middleware.RequireRole(models.RoleEditorialAdmin), controllers.FixEditorialDecision)
				submissions.GET("/:id/decision", controllers.GetEditorialDecision)
				submissions.POST("/:id/accept-offer", controllers.AcceptPublicationOffer)

				// Editor-in-charge operations
				submissions.GET("/:id/assignments", controllers.ListAssignments)
				submissions.POST("/:id/volunteer", middleware.RequireRole(models.RoleFellow), controllers.VolunteerAsEditor)
				submissions.POST("/:id/cycle", controllers.ChooseCycle)
				submissions.POST("/:id/referee-invitations", controllers.InviteReferee)
				submissions.GET("/:id/referee-invitations", controllers.ListInvitations)
				submissions.POST("/:id/close-round", controllers.CloseRefereeingRound)
				submissions.POST("/:id/extend-deadline", controllers.ExtendReportingDeadline)
				submissions.POST("/:id/recommendation", controllers.FormulateRecommendation)
				submissions.GET("/:id/recommendation", controllers.GetActiveRecommendation)

				// Referee reports
				submissions.POST("/:id/reports", controllers.SubmitReport)
				submissions.GET("/:id/reports", controllers.ListVettedReports)
			}

			// Editorial assignments
			assignments := protected.Group("/assignments")
			{
				assignments.POST("/:id/send", middleware.RequireRole(models.RoleEditorialAdmin), controllers.SendAssignmentInvitation)
				assignments.POST("/:id/respond", middleware.RequireRole(models.RoleFellow), controllers.RespondToAssignment)
			}

			// Referee invitations (editor side)
			invitations := protected.Group("/referee-invitations")
			{
				invitations.POST("/:id/cancel", controllers.CancelRefereeInvitation)
				invitations.POST("/:id/remind", controllers.RemindReferee)
				invitations.PUT("/:id/auto-reminders", controllers.SetAutoReminders)
			}

			// Reports
			reports := protected.Group("/reports")
			{
				reports.POST("/:id/finalize", controllers.FinalizeReport)
				reports.POST("/:id/vet", controllers.VetReport)
			}

			// Recommendations & voting
			recommendations := protected.Group("/recommendations")
			{
				recommendations.POST("/:id/prepare-voting", middleware.RequireRole(models.RoleEditorialAdmin), controllers.PrepareForVoting)
				recommendations.POST("/:id/vote", middleware.RequireRole(models.RoleFellow, models.RoleEditorialAdmin), controllers.CastVote)
				recommendations.GET("/:id/tally", controllers.GetVoteTallies)
				recommendations.POST("/:id/reformulate", controllers.ReformulateRecommendation)
				recommendations.POST("/:id/remarks", controllers.AddRecommendationRemark)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Endpoint not found"})
	})
}
