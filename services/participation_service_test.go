package services_test

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

var _ = Describe("ParticipationService", func() {
	var (
		f           *fixture
		organizer   models.Actor
		participant models.Actor
		competition *models.Competition
	)

	BeforeEach(func() {
		f = newFixture()
		organizer = f.register(models.RoleOrganizer)
		participant = f.register(models.RoleParticipant)
		competition = f.open(organizer, time.Now().UTC().Add(72*time.Hour))
	})

	count := func(competitionID uuid.UUID) int {
		list, err := f.participations.ListCompetitionParticipations(f.ctx, organizer, competitionID, nil)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return len(list)
	}

	Describe("CreateParticipation", func() {
		It("registers a pending participation and notifies", func() {
			p, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(models.ParticipationPending))
			Expect(p.TeamID).To(BeNil())

			events := f.notifier.participationEvents()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal(models.ParticipationCreated))
			Expect(events[0].ParticipationID).To(Equal(p.ID))
			Expect(events[0].CompetitionName).To(Equal("Spring Cup"))
			Expect(events[0].UserEmail).To(Equal("user2@example.com"))
		})

		It("refuses a second active participation and keeps exactly one", func() {
			_, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).To(MatchError(services.ErrDuplicateParticipation))
			Expect(errors.Is(err, services.ErrDuplicate)).To(BeTrue())
			Expect(count(competition.ID)).To(Equal(1))
		})

		It("allows registering again after a rejection", func() {
			p, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.participations.ReviewParticipation(f.ctx, organizer, p.ID, models.ParticipationRejected)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.participations.CheckParticipation(f.ctx, competition.ID.String(), participant.UserID.String())).To(BeFalse())

			again, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.ID).NotTo(Equal(p.ID))
			Expect(count(competition.ID)).To(Equal(2))
		})

		It("requires the competition to be OPEN", func() {
			draft := f.draft(organizer, time.Now().UTC().Add(72*time.Hour))
			_, err := f.participations.CreateParticipation(f.ctx, participant, draft.ID, nil)
			Expect(err).To(MatchError(services.ErrRegistrationNotOpen))

			_, err = f.participations.CreateParticipation(f.ctx, participant, uuid.New(), nil)
			Expect(err).To(MatchError(services.ErrCompetitionNotFound))
		})

		It("stops at the participant limit", func() {
			limited := f.open(organizer, time.Now().UTC().Add(72*time.Hour), func(in *services.CreateCompetitionInput) {
				in.MaxParticipants = 1
			})
			_, err := f.participations.CreateParticipation(f.ctx, participant, limited.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = f.participations.CreateParticipation(f.ctx, f.register(models.RoleParticipant), limited.ID, nil)
			Expect(err).To(MatchError(services.ErrCompetitionFull))
		})

		It("creates the team with the registering user as captain", func() {
			p, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, teamPayload("Les Bleus", "Zinedine", "Thierry"))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.TeamID).NotTo(BeNil())
			Expect(p.Team.CaptainID).To(Equal(participant.UserID))
			Expect(p.Team.Players).To(HaveLen(2))

			team, err := f.roster.GetTeam(f.ctx, *p.TeamID)
			Expect(err).NotTo(HaveOccurred())
			Expect(team.Name).To(Equal("Les Bleus"))
			Expect(team.Players).To(HaveLen(2))
		})

		It("keeps a payload without a team as plain data", func() {
			p, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, json.RawMessage(`{"notes":"vegetarian"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.TeamID).To(BeNil())
			Expect(string(p.TeamData)).To(MatchJSON(`{"notes":"vegetarian"}`))
		})

		It("rejects malformed team data", func() {
			_, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, json.RawMessage(`{"players":[{"firstName":"A","lastName":"B"}]}`))
			Expect(err).To(MatchError(services.ErrInvalidTeamData))

			_, err = f.participations.CreateParticipation(f.ctx, participant, competition.ID, json.RawMessage(`[1,2]`))
			Expect(err).To(MatchError(services.ErrInvalidTeamData))
			Expect(count(competition.ID)).To(Equal(0))
		})

		It("leaves nothing behind when a player cannot be stored", func() {
			f.store.FailOn("players.Create", errors.New("disk full"))

			_, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, teamPayload("Les Bleus", "Zinedine"))
			Expect(errors.Is(err, services.ErrPersistence)).To(BeTrue())
			Expect(count(competition.ID)).To(Equal(0))

			teams, err := f.store.Teams().ListByCompetition(f.ctx, competition.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(teams).To(BeEmpty())
			Expect(f.notifier.participationEvents()).To(BeEmpty())

			f.store.FailOn("players.Create", nil)
			_, err = f.participations.CreateParticipation(f.ctx, participant, competition.ID, teamPayload("Les Bleus", "Zinedine"))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("CheckParticipation and GetCompetitionStats", func() {
		It("answers false and zero for malformed identifiers", func() {
			Expect(f.participations.CheckParticipation(f.ctx, "not-an-id", participant.UserID.String())).To(BeFalse())
			Expect(f.participations.CheckParticipation(f.ctx, competition.ID.String(), "")).To(BeFalse())
			Expect(f.participations.GetCompetitionStats(f.ctx, "not-an-id")).To(Equal(models.CompetitionStats{}))
		})

		It("answers false when storage fails", func() {
			_, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			f.store.FailOn("participations.FindActive", errors.New("timeout"))
			Expect(f.participations.CheckParticipation(f.ctx, competition.ID.String(), participant.UserID.String())).To(BeFalse())

			f.store.FailOn("participations.CountByStatus", errors.New("timeout"))
			Expect(f.participations.GetCompetitionStats(f.ctx, competition.ID.String())).To(Equal(models.CompetitionStats{}))
		})

		It("counts approved and pending participations", func() {
			p, err := f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.participations.CreateParticipation(f.ctx, f.register(models.RoleParticipant), competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.participations.ReviewParticipation(f.ctx, organizer, p.ID, models.ParticipationApproved)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.participations.CheckParticipation(f.ctx, competition.ID.String(), participant.UserID.String())).To(BeTrue())
			Expect(f.participations.GetCompetitionStats(f.ctx, competition.ID.String())).To(Equal(models.CompetitionStats{
				ParticipantCount: 1,
				PendingCount:     1,
			}))
		})
	})

	Describe("access", func() {
		var p *models.Participation

		BeforeEach(func() {
			var err error
			p, err = f.participations.CreateParticipation(f.ctx, participant, competition.ID, teamPayload("Les Bleus", "Zinedine"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("shows a participation to its owner and the organizer only", func() {
			own, err := f.participations.GetParticipation(f.ctx, participant, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(own.Team).NotTo(BeNil())
			Expect(own.Team.Players).To(HaveLen(1))

			_, err = f.participations.GetParticipation(f.ctx, organizer, p.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = f.participations.GetParticipation(f.ctx, f.register(models.RoleParticipant), p.ID)
			Expect(err).To(MatchError(services.ErrParticipationNotFound))
		})

		It("lists a competition's participations for managers only", func() {
			_, err := f.participations.ListCompetitionParticipations(f.ctx, participant, competition.ID, nil)
			Expect(err).To(MatchError(services.ErrNotOrganizer))

			pending := models.ParticipationPending
			list, err := f.participations.ListCompetitionParticipations(f.ctx, f.register(models.RoleAdmin), competition.ID, &pending)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))

			mine, err := f.participations.ListMyParticipations(f.ctx, participant)
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(1))
			Expect(mine[0].ID).To(Equal(p.ID))
		})

		It("lets only managers review", func() {
			_, err := f.participations.ReviewParticipation(f.ctx, participant, p.ID, models.ParticipationApproved)
			Expect(err).To(MatchError(services.ErrNotOrganizer))

			_, err = f.participations.ReviewParticipation(f.ctx, f.register(models.RoleParticipant), p.ID, models.ParticipationApproved)
			Expect(err).To(MatchError(services.ErrParticipationNotFound))

			_, err = f.participations.ReviewParticipation(f.ctx, organizer, p.ID, models.ParticipationPending)
			Expect(errors.Is(err, services.ErrValidation)).To(BeTrue())

			reviewed, err := f.participations.ReviewParticipation(f.ctx, organizer, p.ID, models.ParticipationApproved)
			Expect(err).NotTo(HaveOccurred())
			Expect(reviewed.Status).To(Equal(models.ParticipationApproved))

			events := f.notifier.participationEvents()
			Expect(events[len(events)-1].Type).To(Equal(models.ParticipationReviewed))
			Expect(events[len(events)-1].Status).To(Equal(models.ParticipationApproved))
		})

		It("withdraws with the team and lets the user register again", func() {
			Expect(f.participations.WithdrawParticipation(f.ctx, organizer, p.ID)).To(MatchError(services.ErrParticipationNotFound))

			Expect(f.participations.WithdrawParticipation(f.ctx, participant, p.ID)).To(Succeed())
			_, err := f.roster.GetTeam(f.ctx, *p.TeamID)
			Expect(err).To(MatchError(services.ErrTeamNotFound))
			Expect(f.participations.CheckParticipation(f.ctx, competition.ID.String(), participant.UserID.String())).To(BeFalse())

			events := f.notifier.participationEvents()
			Expect(events[len(events)-1].Type).To(Equal(models.ParticipationWithdrawn))

			_, err = f.participations.CreateParticipation(f.ctx, participant, competition.ID, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("does not withdraw a rejected participation", func() {
			_, err := f.participations.ReviewParticipation(f.ctx, organizer, p.ID, models.ParticipationRejected)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.participations.WithdrawParticipation(f.ctx, participant, p.ID)).To(MatchError(services.ErrNotWithdrawable))
		})
	})
})
