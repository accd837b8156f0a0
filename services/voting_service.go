package services

import (
	"errors"
	"fmt"
	"strings"

	"peer-review-api/config"
	"peer-review-api/models"

	"gorm.io/gorm"
)

// VotingService carries a submission from the editor's recommendation through
// college voting: formulation, eligibility locking, vote casting and tallying,
// and reformulation after a restart.
type VotingService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
	registry EditorRegistry
}

func NewVotingService(db *gorm.DB, clock Clock, notifier Notifier, registry EditorRegistry) *VotingService {
	if db == nil {
		db = config.DB
	}
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = NewMailNotifier(db, clock)
	}
	if registry == nil {
		registry = NewEditorRegistry()
	}
	return &VotingService{db: db, clock: clock, notifier: notifier, registry: registry}
}

// RecommendationContent carries the editor-authored fields of a
// recommendation.
type RecommendationContent struct {
	Recommendation    int    `json:"recommendation" binding:"required"`
	ForJournalID      int    `json:"for_journal_id" binding:"required"`
	RemarksForAuthors string `json:"remarks_for_authors"`
	RequestedChanges  string `json:"requested_changes"`
	RemarksForCollege string `json:"remarks_for_college"`
}

func validRecommendationValue(value int) bool {
	switch value {
	case models.RecommendationTier1, models.RecommendationTier2, models.RecommendationTier3,
		models.RecommendationMinorRevision, models.RecommendationMajorRevision,
		models.RecommendationReject:
		return true
	}
	return false
}

// Formulate records the editor-in-charge's recommendation. A revision request
// goes straight back to the authors; publish and reject recommendations enter
// voting preparation. At most one non-deprecated recommendation exists per
// submission.
func (s *VotingService) Formulate(submissionID, actorID int, content RecommendationContent) (*models.EICRecommendation, error) {
	if !validRecommendationValue(content.Recommendation) {
		return nil, guardViolation("unknown recommendation value %d", content.Recommendation)
	}

	var rec models.EICRecommendation
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpFormulate); err != nil {
			return err
		}
		if sub.Status != models.StatusAssigned {
			return guardViolation("submission %d is not ready for a recommendation", submissionID)
		}

		var active int64
		if err := tx.Model(&models.EICRecommendation{}).
			Where("submission_id = ? AND status != ?", submissionID, models.RecDeprecated).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return alreadyExists("submission %d already has an active recommendation", submissionID)
		}

		var maxVersion int
		tx.Model(&models.EICRecommendation{}).
			Where("submission_id = ?", submissionID).
			Select("COALESCE(MAX(version), 0)").Scan(&maxVersion)

		rec = models.EICRecommendation{
			SubmissionID:      submissionID,
			Version:           maxVersion + 1,
			Recommendation:    content.Recommendation,
			ForJournalID:      content.ForJournalID,
			RemarksForAuthors: content.RemarksForAuthors,
			RequestedChanges:  content.RequestedChanges,
			RemarksForCollege: content.RemarksForCollege,
			Status:            models.RecVotingInPreparation,
			DateFormulated:    s.clock.Now(),
		}

		if rec.AsksRevision() {
			// Revision requests bypass the college: the recommendation is
			// acted upon immediately and the authors are asked to resubmit.
			rec.Status = models.RecDecisionFixed
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
			if err := transition(tx, s.clock, sub, models.StatusAwaitingResubmission, actorID,
				"The editor-in-charge has requested a revised version."); err != nil {
				return err
			}
			if err := tx.Model(&models.Submission{}).
				Where("submission_id = ?", submissionID).
				Updates(map[string]any{
					"open_for_reporting": false,
					"reporting_deadline": s.clock.Now(),
				}).Error; err != nil {
				return err
			}
			notes = append(notes, notice{TplRevisionRequested, submissionID, ToAuthors(),
				map[string]string{"title": sub.Title}})
			return ensureNotWithdrawn(tx, submissionID)
		}

		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if err := transition(tx, s.clock, sub, models.StatusVotingInPreparation, actorID,
			"The editor-in-charge has formulated a recommendation."); err != nil {
			return err
		}
		return ensureNotWithdrawn(tx, submissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &rec, nil
}

// PrepareForVoting validates and locks the eligible voter set, opens voting
// and stamps the voting deadline. Eligibility is recomputed here, never
// trusted from the request: each candidate must sit in the submission's fellow
// pool and be free of competing interests; the handling editor is always
// eligible.
func (s *VotingService) PrepareForVoting(recommendationID, actorID int, eligibleIDs []int) error {
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := loadRecommendation(tx, recommendationID)
		if err != nil {
			return err
		}
		sub, err := loadSubmission(tx, rec.SubmissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpPrepareVoting); err != nil {
			return err
		}
		if rec.Status != models.RecVotingInPreparation {
			return guardViolation("recommendation %d is %s, not in voting preparation", recommendationID, rec.Status)
		}
		if rec.AsksRevision() {
			return guardViolation("revision requests are not put to voting")
		}
		if sub.EditorInChargeID == nil {
			return guardViolation("submission %d has no editor-in-charge", sub.SubmissionID)
		}

		pool, err := s.registry.EligibleFellows(tx, sub)
		if err != nil {
			return err
		}
		inPool := make(map[int]bool, len(pool))
		for _, fellow := range pool {
			inPool[fellow.UserID] = true
		}

		voterIDs := append([]int{}, eligibleIDs...)
		hasEIC := false
		for _, id := range voterIDs {
			if id == *sub.EditorInChargeID {
				hasEIC = true
				break
			}
		}
		if !hasEIC {
			voterIDs = append(voterIDs, *sub.EditorInChargeID)
		}

		var voters []models.User
		for _, id := range voterIDs {
			if id != *sub.EditorInChargeID && !inPool[id] {
				return notEligible("user %d is not in the fellow pool of submission %d", id, sub.SubmissionID)
			}
			conflicted, err := s.registry.HasCompetingInterest(tx, id, sub)
			if err != nil {
				return err
			}
			if conflicted {
				return notEligible("user %d has a competing interest with the authors", id)
			}
			voter, err := loadUser(tx, id)
			if err != nil {
				return err
			}
			voters = append(voters, *voter)
		}
		if len(voters) == 0 {
			return guardViolation("the eligible voter set cannot be empty")
		}

		if err := tx.Model(rec).Association("EligibleVoters").Replace(voters); err != nil {
			return err
		}

		deadline := s.clock.Now().AddDate(0, 0, votingPeriodDays(sub.Journal))
		res := tx.Model(&models.EICRecommendation{}).
			Where("recommendation_id = ? AND status = ?", recommendationID, models.RecVotingInPreparation).
			Updates(map[string]any{"status": models.RecPutToVoting, "voting_deadline": deadline})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("recommendation %d was updated concurrently", recommendationID)
		}

		if err := transition(tx, s.clock, sub, models.StatusPutToVoting, actorID,
			"The recommendation has been put to college voting."); err != nil {
			return err
		}
		for _, voter := range voters {
			notes = append(notes, notice{TplVotingOpened, sub.SubmissionID,
				ToUser(voter.UserID), map[string]string{"title": sub.Title}})
		}
		return ensureNotWithdrawn(tx, sub.SubmissionID)
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return nil
}

// VoteInput is one fellow's ballot.
type VoteInput struct {
	Vote              string `json:"vote" binding:"required"`
	Tier              *int   `json:"tier,omitempty"`
	AltJournalID      *int   `json:"alt_journal_id,omitempty"`
	AltRecommendation *int   `json:"alt_recommendation,omitempty"`
}

// CastVote records or replaces the voter's ballot on an open recommendation.
// Only members of the locked eligible set may vote; a changed ballot leaves an
// audit remark. A tier is only meaningful with an agree on a publish
// recommendation, an alternative only with a disagree.
func (s *VotingService) CastVote(recommendationID, voterID int, input VoteInput) (*models.RecommendationVote, error) {
	switch input.Vote {
	case models.VoteAgree, models.VoteDisagree, models.VoteAbstain:
	default:
		return nil, guardViolation("unknown vote %q", input.Vote)
	}

	var vote models.RecommendationVote

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := loadRecommendation(tx, recommendationID)
		if err != nil {
			return err
		}
		if rec.Status != models.RecPutToVoting {
			return guardViolation("recommendation %d is not open for voting", recommendationID)
		}
		if rec.VotingDeadline != nil && s.clock.Now().After(*rec.VotingDeadline) {
			return deadlineExpired("voting on recommendation %d has closed", recommendationID)
		}

		var eligible int64
		if err := tx.Table("recommendation_eligibility").
			Where("recommendation_id = ? AND user_id = ?", recommendationID, voterID).
			Count(&eligible).Error; err != nil {
			return err
		}
		if eligible == 0 {
			return notEligible("user %d is not in the eligible voter set", voterID)
		}

		if input.Tier != nil {
			if input.Vote != models.VoteAgree || !rec.IsPublishRecommendation() {
				return guardViolation("a tier may only accompany an agree vote on a publish recommendation")
			}
			if *input.Tier < models.RecommendationTier1 || *input.Tier > models.RecommendationTier3 {
				return guardViolation("unknown tier %d", *input.Tier)
			}
		}
		if (input.AltJournalID != nil || input.AltRecommendation != nil) && input.Vote != models.VoteDisagree {
			return guardViolation("an alternative may only accompany a disagree vote")
		}

		now := s.clock.Now()
		var existing models.RecommendationVote
		err = tx.Where("recommendation_id = ? AND voter_id = ?", recommendationID, voterID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.Vote != input.Vote {
				voter, err := loadUser(tx, voterID)
				if err != nil {
					return err
				}
				remark := models.Remark{
					RecommendationID: recommendationID,
					ContributorID:    voterID,
					Text: fmt.Sprintf("%s changed their vote from %s to %s.",
						voter.FullName(), existing.Vote, input.Vote),
					Date: now,
				}
				if err := tx.Create(&remark).Error; err != nil {
					return err
				}
			}
			if err := tx.Model(&models.RecommendationVote{}).
				Where("vote_id = ?", existing.VoteID).
				Updates(map[string]any{
					"vote":               input.Vote,
					"tier":               input.Tier,
					"alt_journal_id":     input.AltJournalID,
					"alt_recommendation": input.AltRecommendation,
					"updated_at":         now,
				}).Error; err != nil {
				return err
			}
			return tx.First(&vote, existing.VoteID).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote = models.RecommendationVote{
				RecommendationID:  recommendationID,
				VoterID:           voterID,
				Vote:              input.Vote,
				Tier:              input.Tier,
				AltJournalID:      input.AltJournalID,
				AltRecommendation: input.AltRecommendation,
				CreatedAt:         now,
			}
			return tx.Create(&vote).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

// Tallies aggregates the ballots on a recommendation version.
func (s *VotingService) Tallies(recommendationID int) (*models.VoteTally, error) {
	var votes []models.RecommendationVote
	if err := s.db.Where("recommendation_id = ?", recommendationID).Find(&votes).Error; err != nil {
		return nil, err
	}

	tally := models.VoteTally{Tiers: map[int]int{}}
	for _, v := range votes {
		switch v.Vote {
		case models.VoteAgree:
			tally.For++
			if v.Tier != nil {
				tally.Tiers[*v.Tier]++
			}
		case models.VoteDisagree:
			tally.Against++
		case models.VoteAbstain:
			tally.Abstained++
		}
	}
	return &tally, nil
}

// Reformulate replaces the active recommendation with a new version. Allowed
// while voting is still in preparation, or after a cycle restart once the
// submission is back under refereeing. The prior version is deprecated and its
// votes cleared; the new version starts a fresh tally.
func (s *VotingService) Reformulate(recommendationID, actorID int, content RecommendationContent) (*models.EICRecommendation, error) {
	if !validRecommendationValue(content.Recommendation) {
		return nil, guardViolation("unknown recommendation value %d", content.Recommendation)
	}

	var next models.EICRecommendation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := loadRecommendation(tx, recommendationID)
		if err != nil {
			return err
		}
		sub, err := loadSubmission(tx, rec.SubmissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpReformulate); err != nil {
			return err
		}
		if rec.Status != models.RecVotingInPreparation {
			return guardViolation("recommendation %d can no longer be reformulated", recommendationID)
		}

		if err := deprecateRecommendation(tx, rec); err != nil {
			return err
		}

		next = models.EICRecommendation{
			SubmissionID:      sub.SubmissionID,
			Version:           rec.Version + 1,
			Recommendation:    content.Recommendation,
			ForJournalID:      content.ForJournalID,
			RemarksForAuthors: content.RemarksForAuthors,
			RequestedChanges:  content.RequestedChanges,
			RemarksForCollege: content.RemarksForCollege,
			Status:            models.RecVotingInPreparation,
			DateFormulated:    s.clock.Now(),
		}
		if err := tx.Create(&next).Error; err != nil {
			return err
		}
		if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForEIC, actorID,
			fmt.Sprintf("The recommendation has been reformulated (version %d).", next.Version)); err != nil {
			return err
		}
		return ensureNotWithdrawn(tx, sub.SubmissionID)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// AddRemark attaches a free remark to a recommendation during voting.
func (s *VotingService) AddRemark(recommendationID, contributorID int, text string) (*models.Remark, error) {
	if strings.TrimSpace(text) == "" {
		return nil, guardViolation("a remark cannot be empty")
	}

	var remark models.Remark
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := loadRecommendation(tx, recommendationID)
		if err != nil {
			return err
		}
		if rec.Status == models.RecDeprecated {
			return guardViolation("recommendation %d is deprecated", recommendationID)
		}
		remark = models.Remark{
			RecommendationID: recommendationID,
			ContributorID:    contributorID,
			Text:             text,
			Date:             s.clock.Now(),
		}
		return tx.Create(&remark).Error
	})
	if err != nil {
		return nil, err
	}
	return &remark, nil
}

// ActiveRecommendation returns the governing (non-deprecated) recommendation
// for a submission.
func (s *VotingService) ActiveRecommendation(submissionID int) (*models.EICRecommendation, error) {
	var rec models.EICRecommendation
	err := s.db.Preload("Votes").Preload("Remarks").
		Where("submission_id = ? AND status != ?", submissionID, models.RecDeprecated).
		Order("version DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("submission %d has no active recommendation", submissionID)
		}
		return nil, err
	}
	return &rec, nil
}

func loadRecommendation(tx *gorm.DB, recommendationID int) (*models.EICRecommendation, error) {
	var rec models.EICRecommendation
	if err := tx.First(&rec, recommendationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("recommendation %d not found", recommendationID)
		}
		return nil, err
	}
	return &rec, nil
}

func votingPeriodDays(journal models.Journal) int {
	if journal.VotingPeriodDays > 0 {
		return journal.VotingPeriodDays
	}
	return 7
}
