package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"peer-review-api/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database and migrates the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.CompetingInterest{},
		&models.Specialty{},
		&models.Journal{},
		&models.Submission{},
		&models.SubmissionEvent{},
		&models.EditorialAssignment{},
		&models.RefereeInvitation{},
		&models.Report{},
		&models.EICRecommendation{},
		&models.RecommendationVote{},
		&models.Remark{},
		&models.EditorialDecision{},
		&models.ProductionHandoff{},
		&models.Notification{},
	))
	return db
}

// stepClock is a mutable clock for deadline tests.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock(at time.Time) *stepClock { return &stepClock{now: at} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *stepClock) set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

// monday is a weekday anchor so workday arithmetic in sweep tests stays
// predictable.
var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	db      *gorm.DB
	clock   *stepClock
	sent    *RecordingNotifier
	journal models.Journal
	admin   models.User
	author  models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clock := newStepClock(monday)

	f := &fixture{
		t:     t,
		db:    db,
		clock: clock,
		sent:  NewRecordingNotifier(clock),
	}
	f.journal = f.seedJournal(models.AssignmentModePriority)
	f.admin = f.seedUser(models.RoleEditorialAdmin)
	f.author = f.seedUser(models.RoleAuthor)
	return f
}

func (f *fixture) seedJournal(mode string) models.Journal {
	f.t.Helper()
	journal := models.Journal{
		Code:                 "JPA" + uuid.NewString()[:6],
		Name:                 "Journal of Peer Assessment",
		AssignmentMode:       mode,
		AssignmentPeriodDays: 5,
		RefereeingPeriodDays: 28,
		VotingPeriodDays:     7,
		MinimumReferees:      3,
	}
	require.NoError(f.t, f.db.Create(&journal).Error)
	return journal
}

func (f *fixture) seedUser(roleID int) models.User {
	f.t.Helper()
	user := models.User{
		FirstName:   "Test",
		LastName:    "User" + uuid.NewString()[:8],
		Email:       uuid.NewString()[:13] + "@example.org",
		Password:    "irrelevant",
		RoleID:      roleID,
		IsAvailable: true,
	}
	require.NoError(f.t, f.db.Create(&user).Error)
	return user
}

func (f *fixture) seedFellow() models.User { return f.seedUser(models.RoleFellow) }

// seedSubmission creates a submission in the given state, submitted by
// f.author to f.journal.
func (f *fixture) seedSubmission(status string) models.Submission {
	f.t.Helper()
	now := f.clock.Now()
	sub := models.Submission{
		ThreadID:       uuid.NewString(),
		VersionNr:      1,
		Title:          "On the Testability of Editorial Workflows",
		Abstract:       "An abstract.",
		AuthorList:     f.author.FullName(),
		SubmittedBy:    f.author.UserID,
		JournalID:      f.journal.JournalID,
		Status:         status,
		IsCurrent:      true,
		VisiblePublic:  true,
		SubmissionDate: now,
		LatestActivity: now,
		CreateAt:       now,
	}
	require.NoError(f.t, f.db.Create(&sub).Error)
	require.NoError(f.t, f.db.Model(&sub).Association("Authors").Append(&f.author))
	return sub
}

// addToPool puts fellows into the submission's pool.
func (f *fixture) addToPool(sub *models.Submission, fellows ...models.User) {
	f.t.Helper()
	for i := range fellows {
		require.NoError(f.t, f.db.Model(sub).Association("Fellows").Append(&fellows[i]))
	}
}

// declareConflict records a competing interest between two users.
func (f *fixture) declareConflict(userID, relatedID int) {
	f.t.Helper()
	ci := models.CompetingInterest{
		UserID:        userID,
		RelatedUserID: relatedID,
		Nature:        "coauthor",
		CreateAt:      f.clock.Now(),
	}
	require.NoError(f.t, f.db.Create(&ci).Error)
}

// reload fetches the submission fresh from the database.
func (f *fixture) reload(sub *models.Submission) models.Submission {
	f.t.Helper()
	var out models.Submission
	require.NoError(f.t, f.db.First(&out, sub.SubmissionID).Error)
	return out
}

func (f *fixture) assignments() *AssignmentService {
	return NewAssignmentService(f.db, f.clock, f.sent, nil)
}

func (f *fixture) refereeing() *RefereeingService {
	return NewRefereeingService(f.db, f.clock, f.sent, nil, nil)
}

func (f *fixture) voting() *VotingService {
	return NewVotingService(f.db, f.clock, f.sent, nil)
}

func (f *fixture) decisions() *DecisionService {
	return NewDecisionService(f.db, f.clock, f.sent, nil)
}

func (f *fixture) submissions() *SubmissionService {
	return NewSubmissionService(f.db, f.clock)
}

func (f *fixture) sweep() *SweepService {
	return NewSweepService(f.db, f.clock, f.sent, f.assignments())
}

// assignedSubmission fast-forwards a submission to the assigned state with the
// given fellow in charge and reporting open.
func (f *fixture) assignedSubmission(eic models.User) models.Submission {
	f.t.Helper()
	sub := f.seedSubmission(models.StatusIncoming)
	f.addToPool(&sub, eic)

	_, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID, []int{eic.UserID})
	require.NoError(f.t, err)

	var assignment models.EditorialAssignment
	require.NoError(f.t, f.db.Where("submission_id = ?", sub.SubmissionID).First(&assignment).Error)
	_, err = f.assignments().SendInvitation(assignment.AssignmentID, f.admin.UserID)
	require.NoError(f.t, err)
	_, err = f.assignments().Respond(assignment.AssignmentID, eic.UserID, true, nil)
	require.NoError(f.t, err)

	return f.reload(&sub)
}
