package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

func seedCompetition(t *testing.T, s *MemoryStore, status models.CompetitionStatus, start time.Time) *models.Competition {
	t.Helper()
	ctx := context.Background()
	organizer := &models.User{Email: uuid.NewString() + "@example.com", FirstName: "A", LastName: "B", Role: models.RoleOrganizer}
	if err := s.Users().Create(ctx, organizer); err != nil {
		t.Fatalf("create organizer: %v", err)
	}
	c := &models.Competition{
		Name:        "Cup",
		OrganizerID: organizer.ID,
		Category:    "chess",
		JoinCode:    uuid.NewString()[:8],
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      status,
	}
	if err := s.Competitions().Create(ctx, c); err != nil {
		t.Fatalf("create competition: %v", err)
	}
	return c
}

func TestMemoryUsersUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	phone, country := "+33612345678", "FR"

	first := &models.User{Email: "a@example.com", PhoneNumber: &phone, Country: &country}
	if err := s.Users().Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.Users().Create(ctx, &models.User{Email: "A@example.com"}); !errors.Is(err, ErrUserEmailConflict) {
		t.Fatalf("email conflict: got %v", err)
	}
	if err := s.Users().Create(ctx, &models.User{Email: "b@example.com", PhoneNumber: &phone, Country: &country}); !errors.Is(err, ErrUserPhoneConflict) {
		t.Fatalf("phone conflict: got %v", err)
	}
	other := "CI"
	if err := s.Users().Create(ctx, &models.User{Email: "c@example.com", PhoneNumber: &phone, Country: &other}); err != nil {
		t.Fatalf("same number in another country: %v", err)
	}
}

func TestMemoryUpdateStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedCompetition(t, s, models.StatusOpen, time.Now())

	if err := s.Competitions().UpdateStatus(ctx, c.ID, models.StatusDraft, models.StatusClosed); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("stale from: got %v", err)
	}
	if err := s.Competitions().UpdateStatus(ctx, c.ID, models.StatusOpen, models.StatusClosed); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Competitions().GetByID(ctx, c.ID)
	if got.Status != models.StatusClosed {
		t.Fatalf("status = %s, want CLOSED", got.Status)
	}
}

func TestMemorySweepCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	later := seedCompetition(t, s, models.StatusOpen, now.Add(-time.Minute))
	earlier := seedCompetition(t, s, models.StatusClosed, now.Add(-2*time.Minute))
	seedCompetition(t, s, models.StatusOpen, now.Add(time.Hour))
	seedCompetition(t, s, models.StatusDraft, now.Add(-time.Hour))
	seedCompetition(t, s, models.StatusCancelled, now.Add(-time.Hour))

	got, err := s.Competitions().ListForStatusSweep(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != earlier.ID || got[1].ID != later.ID {
		t.Fatalf("candidates = %v, want earlier then later", got)
	}
}

func TestMemoryParticipationConflictIgnoresRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedCompetition(t, s, models.StatusOpen, time.Now().Add(time.Hour))

	p := &models.Participation{CompetitionID: c.ID, UserID: c.OrganizerID, Status: models.ParticipationPending}
	if err := s.Participations().Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	dup := &models.Participation{CompetitionID: c.ID, UserID: c.OrganizerID, Status: models.ParticipationPending}
	if err := s.Participations().Create(ctx, dup); !errors.Is(err, ErrParticipationConflict) {
		t.Fatalf("duplicate: got %v", err)
	}

	p.Status = models.ParticipationRejected
	if err := s.Participations().Update(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := s.Participations().Create(ctx, dup); err != nil {
		t.Fatalf("after rejection: %v", err)
	}
}

func TestMemoryDeleteCompetitionCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedCompetition(t, s, models.StatusDraft, time.Now().Add(time.Hour))

	team := &models.Team{CompetitionID: c.ID, Name: "Blue", CaptainID: c.OrganizerID}
	if err := s.Teams().Create(ctx, team); err != nil {
		t.Fatal(err)
	}
	player := &models.Player{TeamID: team.ID, FirstName: "A", LastName: "B"}
	if err := s.Players().Create(ctx, player); err != nil {
		t.Fatal(err)
	}
	if err := s.Competitions().Delete(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Teams().GetByID(ctx, team.ID); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("team after delete: got %v", err)
	}
	if _, err := s.Players().GetByID(ctx, player.ID); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("player after delete: got %v", err)
	}
}

func TestMemoryFailInjection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	s.FailOnce("users.Create", boom)
	if err := s.Users().Create(ctx, &models.User{Email: "a@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("first call: got %v", err)
	}
	if err := s.Users().Create(ctx, &models.User{Email: "a@example.com"}); err != nil {
		t.Fatalf("second call: %v", err)
	}

	s.FailOn("users.Create", boom)
	for i := 0; i < 2; i++ {
		if err := s.Users().Create(ctx, &models.User{Email: "x@example.com"}); !errors.Is(err, boom) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}
	s.FailOn("users.Create", nil)
	if err := s.Users().Create(ctx, &models.User{Email: "x@example.com"}); err != nil {
		t.Fatal(err)
	}
}
