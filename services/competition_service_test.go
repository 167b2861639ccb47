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

var _ = Describe("CompetitionService", func() {
	var (
		f         *fixture
		organizer models.Actor
		start     time.Time
	)

	BeforeEach(func() {
		f = newFixture()
		organizer = f.register(models.RoleOrganizer)
		start = time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	})

	Describe("CreateCompetition", func() {
		It("creates a DRAFT competition with a join code", func() {
			c := f.draft(organizer, start)

			Expect(c.ID).NotTo(Equal(uuid.Nil))
			Expect(c.Status).To(Equal(models.StatusDraft))
			Expect(c.OrganizerID).To(Equal(organizer.UserID))
			Expect(c.JoinCode).To(MatchRegexp(`^[0-9A-F]{8}$`))

			found, err := f.competitions.GetByJoinCode(f.ctx, " "+c.JoinCode+" ")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(c.ID))
		})

		It("lists every missing field in order", func() {
			_, err := f.competitions.CreateCompetition(f.ctx, organizer, services.CreateCompetitionInput{Name: "  "})

			var missing *services.MissingFieldsError
			Expect(errors.As(err, &missing)).To(BeTrue())
			Expect(missing.Fields).To(Equal([]string{"name", "category", "startTime", "endTime"}))
			Expect(errors.Is(err, services.ErrValidation)).To(BeTrue())
		})

		It("requires an organizer or admin", func() {
			participant := f.register(models.RoleParticipant)
			end := start.Add(time.Hour)
			_, err := f.competitions.CreateCompetition(f.ctx, participant, services.CreateCompetitionInput{
				Name: "Cup", Category: "chess", StartTime: &start, EndTime: &end,
			})
			Expect(err).To(MatchError(services.ErrRoleRequired))

			admin := f.register(models.RoleAdmin)
			_, err = f.competitions.CreateCompetition(f.ctx, admin, services.CreateCompetitionInput{
				Name: "Cup", Category: "chess", StartTime: &start, EndTime: &end,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects an inconsistent schedule", func() {
			_, err := f.competitions.CreateCompetition(f.ctx, organizer, services.CreateCompetitionInput{
				Name: "Cup", Category: "chess", StartTime: &start, EndTime: &start,
			})
			Expect(err).To(MatchError(services.ErrInvalidDateRange))

			deadline := start.Add(time.Minute)
			end := start.Add(time.Hour)
			_, err = f.competitions.CreateCompetition(f.ctx, organizer, services.CreateCompetitionInput{
				Name: "Cup", Category: "chess", StartTime: &start, EndTime: &end, RegistrationDeadline: &deadline,
			})
			Expect(err).To(MatchError(services.ErrInvalidDeadline))
		})

		It("rejects rules that are not JSON", func() {
			end := start.Add(time.Hour)
			_, err := f.competitions.CreateCompetition(f.ctx, organizer, services.CreateCompetitionInput{
				Name: "Cup", Category: "chess", StartTime: &start, EndTime: &end, Rules: json.RawMessage(`{"rounds":`),
			})
			Expect(err).To(MatchError(services.ErrInvalidRules))
		})
	})

	Describe("editing", func() {
		It("lets only the organizer or an admin update", func() {
			c := f.draft(organizer, start)
			name := "Autumn Cup"

			other := f.register(models.RoleOrganizer)
			_, err := f.competitions.UpdateCompetition(f.ctx, other, c.ID, services.UpdateCompetitionInput{Name: &name})
			Expect(err).To(MatchError(services.ErrNotOrganizer))

			updated, err := f.competitions.UpdateCompetition(f.ctx, f.register(models.RoleAdmin), c.ID, services.UpdateCompetitionInput{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Autumn Cup"))
		})

		It("replaces the rules document", func() {
			c := f.draft(organizer, start)
			updated, err := f.competitions.UpdateRules(f.ctx, organizer, c.ID, json.RawMessage(`{"rounds":3}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(updated.Rules)).To(MatchJSON(`{"rounds":3}`))
		})

		It("deletes only DRAFT or CANCELLED competitions", func() {
			c := f.open(organizer, start)
			Expect(f.competitions.DeleteCompetition(f.ctx, organizer, c.ID)).To(MatchError(services.ErrCompetitionNotDeletable))

			_, err := f.competitions.Cancel(f.ctx, organizer, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.competitions.DeleteCompetition(f.ctx, organizer, c.ID)).To(Succeed())

			_, err = f.competitions.GetCompetition(f.ctx, c.ID)
			Expect(err).To(MatchError(services.ErrCompetitionNotFound))
		})

		It("filters the listing by status", func() {
			f.draft(organizer, start)
			opened := f.open(organizer, start.Add(time.Hour))

			status := models.StatusOpen
			list, err := f.competitions.ListCompetitions(f.ctx, models.CompetitionFilter{Status: &status})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).To(Equal(opened.ID))

			bogus := models.CompetitionStatus("ARCHIVED")
			_, err = f.competitions.ListCompetitions(f.ctx, models.CompetitionFilter{Status: &bogus})
			Expect(err).To(MatchError(services.ErrInvalidStatus))
		})
	})

	Describe("manual transitions", func() {
		It("publishes only from DRAFT and records the change", func() {
			c := f.open(organizer, start)
			Expect(c.Status).To(Equal(models.StatusOpen))

			_, err := f.competitions.Publish(f.ctx, organizer, c.ID)
			Expect(errors.Is(err, services.ErrInvalidStatusTransition)).To(BeTrue())

			transitions, err := f.competitions.ListTransitions(f.ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(transitions).To(HaveLen(1))
			Expect(transitions[0].OldStatus).To(Equal(models.StatusDraft))
			Expect(transitions[0].NewStatus).To(Equal(models.StatusOpen))
			Expect(transitions[0].Source).To(Equal(models.TransitionSourceManual))
			Expect(*transitions[0].ActorID).To(Equal(organizer.UserID))
		})

		It("keeps CANCELLED terminal", func() {
			c := f.open(organizer, start)
			_, err := f.competitions.Cancel(f.ctx, organizer, c.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = f.competitions.OverrideStatus(f.ctx, organizer, c.ID, models.StatusOpen)
			Expect(errors.Is(err, services.ErrInvalidStatusTransition)).To(BeTrue())
			_, err = f.competitions.Cancel(f.ctx, organizer, c.ID)
			Expect(errors.Is(err, services.ErrInvalidStatusTransition)).To(BeTrue())
			Expect(f.status(c.ID)).To(Equal(models.StatusCancelled))
		})

		It("lets an override move backwards", func() {
			c := f.open(organizer, start)
			_, err := f.competitions.OverrideStatus(f.ctx, organizer, c.ID, models.StatusInProgress)
			Expect(err).NotTo(HaveOccurred())

			back, err := f.competitions.OverrideStatus(f.ctx, organizer, c.ID, models.StatusOpen)
			Expect(err).NotTo(HaveOccurred())
			Expect(back.Status).To(Equal(models.StatusOpen))
		})

		It("rejects unknown statuses and foreign organizers", func() {
			c := f.draft(organizer, start)
			_, err := f.competitions.OverrideStatus(f.ctx, organizer, c.ID, "PAUSED")
			Expect(err).To(MatchError(services.ErrInvalidStatus))

			_, err = f.competitions.Publish(f.ctx, f.register(models.RoleOrganizer), c.ID)
			Expect(err).To(MatchError(services.ErrNotOrganizer))
			Expect(f.status(c.ID)).To(Equal(models.StatusDraft))
		})

		It("reverts the status when the transition cannot be recorded", func() {
			c := f.draft(organizer, start)
			f.store.FailOn("transitions.Create", errors.New("disk full"))

			_, err := f.competitions.Publish(f.ctx, organizer, c.ID)
			Expect(errors.Is(err, services.ErrPersistence)).To(BeTrue())
			Expect(f.status(c.ID)).To(Equal(models.StatusDraft))
			Expect(f.notifier.transitionEvents()).To(BeEmpty())
		})
	})

	Describe("SweepStatuses", func() {
		It("moves an overdue OPEN competition straight to IN_PROGRESS", func() {
			kickoff := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
			c := f.open(organizer, kickoff)

			result, err := f.competitions.SweepStatuses(f.ctx, kickoff.Add(time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Applied).To(HaveLen(1))
			Expect(result.Applied[0].OldStatus).To(Equal(models.StatusOpen))
			Expect(result.Applied[0].NewStatus).To(Equal(models.StatusInProgress))
			Expect(result.Failed).To(BeEmpty())
			Expect(f.status(c.ID)).To(Equal(models.StatusInProgress))

			transitions, err := f.competitions.ListTransitions(f.ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(transitions).To(HaveLen(2))
			Expect(transitions[1].Source).To(Equal(models.TransitionSourceSweep))
			Expect(transitions[1].ActorID).To(BeNil())
			Expect(transitions[1].Timestamp).To(BeTemporally("==", kickoff.Add(time.Second)))
		})

		It("closes registration at the deadline before the start", func() {
			deadline := start.Add(-time.Hour)
			c := f.open(organizer, start, func(in *services.CreateCompetitionInput) {
				in.RegistrationDeadline = &deadline
			})

			result, err := f.competitions.SweepStatuses(f.ctx, deadline)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Applied).To(HaveLen(1))
			Expect(f.status(c.ID)).To(Equal(models.StatusClosed))
		})

		It("applies nothing on a second run at the same instant", func() {
			kickoff := time.Now().UTC().Add(-3 * time.Hour)
			c := f.open(organizer, kickoff)
			now := kickoff.Add(3 * time.Hour)

			first, err := f.competitions.SweepStatuses(f.ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Applied).To(HaveLen(1))
			Expect(f.status(c.ID)).To(Equal(models.StatusCompleted))

			second, err := f.competitions.SweepStatuses(f.ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Applied).To(BeEmpty())
			Expect(second.Failed).To(BeEmpty())
		})

		It("never moves a competition backwards or touches DRAFT and CANCELLED", func() {
			kickoff := time.Now().UTC().Add(-time.Hour)
			draft := f.draft(organizer, kickoff)
			cancelled := f.open(organizer, kickoff)
			_, err := f.competitions.Cancel(f.ctx, organizer, cancelled.ID)
			Expect(err).NotTo(HaveOccurred())
			running := f.open(organizer, kickoff)

			_, err = f.competitions.SweepStatuses(f.ctx, kickoff.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(f.status(running.ID)).To(Equal(models.StatusInProgress))

			_, err = f.competitions.SweepStatuses(f.ctx, kickoff.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(f.status(running.ID)).To(Equal(models.StatusInProgress))
			Expect(f.status(draft.ID)).To(Equal(models.StatusDraft))
			Expect(f.status(cancelled.ID)).To(Equal(models.StatusCancelled))
		})

		It("reports a failed competition and still applies the others", func() {
			kickoff := time.Now().UTC().Add(-time.Hour)
			first := f.open(organizer, kickoff)
			second := f.open(organizer, kickoff.Add(time.Minute))
			f.store.FailOnce("competitions.UpdateStatus", errors.New("connection reset"))

			result, err := f.competitions.SweepStatuses(f.ctx, kickoff.Add(10*time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Transition.CompetitionID).To(Equal(first.ID))
			Expect(result.Failed[0].Error).To(ContainSubstring("connection reset"))
			Expect(result.Applied).To(HaveLen(1))
			Expect(f.status(first.ID)).To(Equal(models.StatusOpen))
			Expect(f.status(second.ID)).To(Equal(models.StatusInProgress))

			summary, ok := f.metrics.Snapshot(services.SweepMetricKey)
			Expect(ok).To(BeTrue())
			Expect(summary.Count).To(Equal(1))
			Expect(summary.Failures).To(Equal(1))
		})

		It("reverts a competition whose transition record fails", func() {
			kickoff := time.Now().UTC().Add(-time.Hour)
			c := f.open(organizer, kickoff)
			f.store.FailOn("transitions.Create", errors.New("disk full"))

			result, err := f.competitions.SweepStatuses(f.ctx, kickoff.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(HaveLen(1))
			Expect(f.status(c.ID)).To(Equal(models.StatusOpen))
		})

		It("fails as a whole only when candidates cannot be loaded", func() {
			f.store.FailOn("competitions.ListForStatusSweep", errors.New("timeout"))
			_, err := f.competitions.SweepStatuses(f.ctx, time.Now())
			Expect(errors.Is(err, services.ErrPersistence)).To(BeTrue())
		})

		It("notifies about every applied transition", func() {
			kickoff := time.Now().UTC().Add(-time.Minute)
			c := f.open(organizer, kickoff)

			_, err := f.competitions.SweepStatuses(f.ctx, kickoff.Add(time.Second))
			Expect(err).NotTo(HaveOccurred())

			events := f.notifier.transitionEvents()
			Expect(events).To(HaveLen(2))
			last := events[1]
			Expect(last.Transition.CompetitionID).To(Equal(c.ID))
			Expect(last.Transition.Source).To(Equal(models.TransitionSourceSweep))
			Expect(last.CompetitionName).To(Equal("Spring Cup"))
			Expect(last.OrganizerEmail).To(Equal("user1@example.com"))
		})

		It("ignores notifier errors", func() {
			f.notifier.err = errors.New("broker down")
			kickoff := time.Now().UTC().Add(-time.Minute)
			c := f.open(organizer, kickoff)

			result, err := f.competitions.SweepStatuses(f.ctx, kickoff.Add(time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Applied).To(HaveLen(1))
			Expect(f.status(c.ID)).To(Equal(models.StatusInProgress))
		})
	})

	Describe("RunSweep", func() {
		It("is reserved to organizers and admins", func() {
			_, err := f.competitions.RunSweep(f.ctx, f.register(models.RoleParticipant))
			Expect(err).To(MatchError(services.ErrRoleRequired))

			result, err := f.competitions.RunSweep(f.ctx, organizer)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Applied).To(BeEmpty())
		})
	})

	Describe("GetCompetition", func() {
		It("includes participation counts", func() {
			c := f.open(organizer, start)
			_, err := f.participations.CreateParticipation(f.ctx, f.register(models.RoleParticipant), c.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			got, err := f.competitions.GetCompetition(f.ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Stats).NotTo(BeNil())
			Expect(got.Stats.PendingCount).To(Equal(1))
			Expect(got.Stats.ParticipantCount).To(Equal(0))
		})

		It("reports unknown competitions as not found", func() {
			_, err := f.competitions.GetCompetition(f.ctx, uuid.New())
			Expect(errors.Is(err, services.ErrNotFound)).To(BeTrue())
			_, err = f.competitions.ListTransitions(f.ctx, uuid.New())
			Expect(errors.Is(err, services.ErrNotFound)).To(BeTrue())
		})
	})
})
