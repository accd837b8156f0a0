package services

import (
	"testing"

	"peer-review-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// votingFixture drives a submission to put_to_voting with the given fellows
// locked in as eligible voters.
func votingFixture(t *testing.T, f *fixture, eic models.User, voters ...models.User) (models.Submission, *models.EICRecommendation) {
	t.Helper()
	sub := f.assignedSubmission(eic)
	f.addToPool(&sub, voters...)

	require.NoError(t, f.refereeing().CloseRound(sub.SubmissionID, eic.UserID))
	rec, err := f.voting().Formulate(sub.SubmissionID, eic.UserID, RecommendationContent{
		Recommendation: models.RecommendationTier2,
		ForJournalID:   f.journal.JournalID,
	})
	require.NoError(t, err)

	ids := make([]int, len(voters))
	for i, v := range voters {
		ids[i] = v.UserID
	}
	require.NoError(t, f.voting().PrepareForVoting(rec.RecommendationID, f.admin.UserID, ids))
	return f.reload(&sub), rec
}

func TestFormulateRequiresAssignedAndUnique(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	content := RecommendationContent{
		Recommendation: models.RecommendationTier1,
		ForJournalID:   f.journal.JournalID,
	}
	rec, err := f.voting().Formulate(sub.SubmissionID, eic.UserID, content)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, models.RecVotingInPreparation, rec.Status)
	assert.Equal(t, models.StatusVotingInPreparation, f.reload(&sub).Status)

	_, err = f.voting().Formulate(sub.SubmissionID, eic.UserID, content)
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestRevisionRequestSkipsVoting(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	rec, err := f.voting().Formulate(sub.SubmissionID, eic.UserID, RecommendationContent{
		Recommendation:   models.RecommendationMajorRevision,
		ForJournalID:     f.journal.JournalID,
		RequestedChanges: "Rework the analysis in section 3.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RecDecisionFixed, rec.Status)

	got := f.reload(&sub)
	assert.Equal(t, models.StatusAwaitingResubmission, got.Status)
	assert.False(t, got.OpenForReporting)
	assert.Contains(t, f.sent.Codes(), TplRevisionRequested)
}

func TestPrepareForVotingValidatesEligibility(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	outsider := f.seedFellow()
	sub := f.assignedSubmission(eic)

	require.NoError(t, f.refereeing().CloseRound(sub.SubmissionID, eic.UserID))
	rec, err := f.voting().Formulate(sub.SubmissionID, eic.UserID, RecommendationContent{
		Recommendation: models.RecommendationTier2,
		ForJournalID:   f.journal.JournalID,
	})
	require.NoError(t, err)

	// Not in the pool.
	err = f.voting().PrepareForVoting(rec.RecommendationID, f.admin.UserID, []int{outsider.UserID})
	assert.ErrorIs(t, err, ErrEligibility)

	// Conflicted pool member.
	conflicted := f.seedFellow()
	f.addToPool(&sub, conflicted)
	f.declareConflict(conflicted.UserID, f.author.UserID)
	err = f.voting().PrepareForVoting(rec.RecommendationID, f.admin.UserID, []int{conflicted.UserID})
	assert.ErrorIs(t, err, ErrEligibility)
}

func TestPrepareForVotingAlwaysIncludesEIC(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	voter := f.seedFellow()
	sub, rec := votingFixture(t, f, eic, voter)

	assert.Equal(t, models.StatusPutToVoting, sub.Status)

	var count int64
	require.NoError(t, f.db.Table("recommendation_eligibility").
		Where("recommendation_id = ? AND user_id = ?", rec.RecommendationID, eic.UserID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCastVoteUpsertsAndAudits(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	voter := f.seedFellow()
	_, rec := votingFixture(t, f, eic, voter)

	first, err := f.voting().CastVote(rec.RecommendationID, voter.UserID, VoteInput{Vote: models.VoteAbstain})
	require.NoError(t, err)

	tier := models.RecommendationTier2
	second, err := f.voting().CastVote(rec.RecommendationID, voter.UserID,
		VoteInput{Vote: models.VoteAgree, Tier: &tier})
	require.NoError(t, err)
	assert.Equal(t, first.VoteID, second.VoteID)

	// The change left an audit remark.
	var remarks []models.Remark
	require.NoError(t, f.db.Where("recommendation_id = ?", rec.RecommendationID).Find(&remarks).Error)
	require.Len(t, remarks, 1)
	assert.Contains(t, remarks[0].Text, "changed their vote")

	tally, err := f.voting().Tallies(rec.RecommendationID)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.For)
	assert.Zero(t, tally.Abstained)
	assert.Equal(t, 1, tally.Tiers[models.RecommendationTier2])
}

func TestCastVoteRejectsOutsiderAndBadCombos(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	voter := f.seedFellow()
	outsider := f.seedFellow()
	_, rec := votingFixture(t, f, eic, voter)

	_, err := f.voting().CastVote(rec.RecommendationID, outsider.UserID, VoteInput{Vote: models.VoteAgree})
	assert.ErrorIs(t, err, ErrEligibility)

	// Tier without agree.
	tier := models.RecommendationTier1
	_, err = f.voting().CastVote(rec.RecommendationID, voter.UserID,
		VoteInput{Vote: models.VoteDisagree, Tier: &tier})
	assert.ErrorIs(t, err, ErrGuardViolation)

	// Alternative without disagree.
	alt := f.journal.JournalID
	_, err = f.voting().CastVote(rec.RecommendationID, voter.UserID,
		VoteInput{Vote: models.VoteAgree, AltJournalID: &alt})
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestTallyScenario(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	a, b, c := f.seedFellow(), f.seedFellow(), f.seedFellow()
	_, rec := votingFixture(t, f, eic, a, b, c)

	tier1, tier2 := models.RecommendationTier1, models.RecommendationTier2
	_, err := f.voting().CastVote(rec.RecommendationID, a.UserID, VoteInput{Vote: models.VoteAgree, Tier: &tier1})
	require.NoError(t, err)
	_, err = f.voting().CastVote(rec.RecommendationID, b.UserID, VoteInput{Vote: models.VoteAgree, Tier: &tier2})
	require.NoError(t, err)
	_, err = f.voting().CastVote(rec.RecommendationID, c.UserID, VoteInput{Vote: models.VoteDisagree})
	require.NoError(t, err)
	_, err = f.voting().CastVote(rec.RecommendationID, eic.UserID, VoteInput{Vote: models.VoteAbstain})
	require.NoError(t, err)

	tally, err := f.voting().Tallies(rec.RecommendationID)
	require.NoError(t, err)
	assert.Equal(t, 2, tally.For)
	assert.Equal(t, 1, tally.Against)
	assert.Equal(t, 1, tally.Abstained)
	assert.Equal(t, 1, tally.Tiers[tier1])
	assert.Equal(t, 1, tally.Tiers[tier2])
}

func TestReformulateBumpsVersionAndClearsVotes(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	require.NoError(t, f.refereeing().CloseRound(sub.SubmissionID, eic.UserID))
	rec, err := f.voting().Formulate(sub.SubmissionID, eic.UserID, RecommendationContent{
		Recommendation: models.RecommendationTier3,
		ForJournalID:   f.journal.JournalID,
	})
	require.NoError(t, err)

	next, err := f.voting().Reformulate(rec.RecommendationID, eic.UserID, RecommendationContent{
		Recommendation: models.RecommendationTier2,
		ForJournalID:   f.journal.JournalID,
	})
	require.NoError(t, err)
	assert.Equal(t, rec.Version+1, next.Version)
	assert.Equal(t, models.RecVotingInPreparation, next.Status)

	var old models.EICRecommendation
	require.NoError(t, f.db.First(&old, rec.RecommendationID).Error)
	assert.Equal(t, models.RecDeprecated, old.Status)

	tally, err := f.voting().Tallies(rec.RecommendationID)
	require.NoError(t, err)
	assert.Zero(t, tally.For+tally.Against+tally.Abstained)
}

func TestReformulateRejectedOnceVoting(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	voter := f.seedFellow()
	_, rec := votingFixture(t, f, eic, voter)

	_, err := f.voting().Reformulate(rec.RecommendationID, eic.UserID, RecommendationContent{
		Recommendation: models.RecommendationTier1,
		ForJournalID:   f.journal.JournalID,
	})
	assert.ErrorIs(t, err, ErrGuardViolation)
}
