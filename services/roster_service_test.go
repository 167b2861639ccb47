package services_test

import (
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

var _ = Describe("RosterService", func() {
	var (
		f         *fixture
		organizer models.Actor
		captain   models.Actor
		team      *models.Team
	)

	BeforeEach(func() {
		f = newFixture()
		organizer = f.register(models.RoleOrganizer)
		captain = f.register(models.RoleParticipant)
		c := f.open(organizer, time.Now().UTC().Add(24*time.Hour))
		p, err := f.participations.CreateParticipation(f.ctx, captain, c.ID, teamPayload("Les Bleus", "Zinedine"))
		Expect(err).NotTo(HaveOccurred())
		team = p.Team
	})

	It("lets the captain manage the roster", func() {
		number := 10
		player, err := f.roster.AddPlayer(f.ctx, captain, team.ID, models.PlayerInput{
			FirstName: " Kylian ", LastName: "Mbappe", JerseyNumber: &number,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(player.FirstName).To(Equal("Kylian"))
		Expect(player.TeamID).To(Equal(team.ID))

		position := "forward"
		updated, err := f.roster.UpdatePlayer(f.ctx, captain, player.ID, services.UpdatePlayerInput{Position: &position})
		Expect(err).NotTo(HaveOccurred())
		Expect(*updated.Position).To(Equal("forward"))
		Expect(*updated.JerseyNumber).To(Equal(10))

		players, err := f.roster.ListTeamPlayers(f.ctx, team.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(players).To(HaveLen(2))

		Expect(f.roster.DeletePlayer(f.ctx, captain, player.ID)).To(Succeed())
		players, err = f.roster.ListTeamPlayers(f.ctx, team.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(players).To(HaveLen(1))
	})

	It("refuses everyone but the captain, admins and organizers included", func() {
		player := team.Players[0]
		admin := f.register(models.RoleAdmin)
		name := "Zizou"

		for _, actor := range []models.Actor{admin, organizer, f.register(models.RoleParticipant)} {
			_, err := f.roster.AddPlayer(f.ctx, actor, team.ID, models.PlayerInput{FirstName: "A", LastName: "B"})
			Expect(err).To(MatchError(services.ErrNotCaptain))
			_, err = f.roster.UpdatePlayer(f.ctx, actor, player.ID, services.UpdatePlayerInput{FirstName: &name})
			Expect(err).To(MatchError(services.ErrNotCaptain))
			Expect(f.roster.DeletePlayer(f.ctx, actor, player.ID)).To(MatchError(services.ErrNotCaptain))
		}

		got, err := f.roster.GetTeam(f.ctx, team.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Players).To(HaveLen(1))
		Expect(got.Players[0].FirstName).To(Equal("Zinedine"))
	})

	It("reports missing players and teams", func() {
		_, err := f.roster.UpdatePlayer(f.ctx, captain, uuid.New(), services.UpdatePlayerInput{})
		Expect(err).To(MatchError(services.ErrPlayerNotFound))
		Expect(f.roster.DeletePlayer(f.ctx, captain, uuid.New())).To(MatchError(services.ErrPlayerNotFound))

		_, err = f.roster.AddPlayer(f.ctx, captain, uuid.New(), models.PlayerInput{FirstName: "A", LastName: "B"})
		Expect(err).To(MatchError(services.ErrTeamNotFound))
		_, err = f.roster.GetTeam(f.ctx, uuid.New())
		Expect(errors.Is(err, services.ErrNotFound)).To(BeTrue())
	})

	It("requires both player names", func() {
		_, err := f.roster.AddPlayer(f.ctx, captain, team.ID, models.PlayerInput{FirstName: "  "})

		var missing *services.MissingFieldsError
		Expect(errors.As(err, &missing)).To(BeTrue())
		Expect(missing.Fields).To(Equal([]string{"firstName", "lastName"}))

		blank := ""
		_, err = f.roster.UpdatePlayer(f.ctx, captain, team.Players[0].ID, services.UpdatePlayerInput{LastName: &blank})
		Expect(errors.As(err, &missing)).To(BeTrue())
		Expect(missing.Fields).To(Equal([]string{"lastName"}))
	})
})
