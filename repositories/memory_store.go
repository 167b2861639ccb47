package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

// memoryStore keeps every entity in maps guarded by one mutex and emulates the unique
// constraints of the database schema. It has no rollback, so it reports no transaction support.
type memoryStore struct {
	mu             sync.RWMutex
	users          map[uuid.UUID]models.User
	competitions   map[uuid.UUID]models.Competition
	participations map[uuid.UUID]models.Participation
	teams          map[uuid.UUID]models.Team
	players        map[uuid.UUID]models.Player
	transitions    []models.StatusTransition

	// failOn and failOnce let tests inject persistence failures per operation name.
	faultMu  sync.Mutex
	failOn   map[string]error
	failOnce map[string]error
}

// MemoryStore is the in-process Store used by tests and local runs.
type MemoryStore struct {
	*memoryStore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{&memoryStore{
		users:          make(map[uuid.UUID]models.User),
		competitions:   make(map[uuid.UUID]models.Competition),
		participations: make(map[uuid.UUID]models.Participation),
		teams:          make(map[uuid.UUID]models.Team),
		players:        make(map[uuid.UUID]models.Player),
		failOn:         make(map[string]error),
		failOnce:       make(map[string]error),
	}}
}

// FailOn makes every later call of op ("competitions.UpdateStatus", "players.Create", ...)
// return err. A nil err clears the failure.
func (s *MemoryStore) FailOn(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

// FailOnce makes only the next call of op return err.
func (s *MemoryStore) FailOnce(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.failOnce[op] = err
}

func (s *memoryStore) fail(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err, ok := s.failOnce[op]; ok {
		delete(s.failOnce, op)
		return err
	}
	return s.failOn[op]
}

func (s *memoryStore) Users() UserRepository                   { return memoryUsers{s} }
func (s *memoryStore) Competitions() CompetitionRepository     { return memoryCompetitions{s} }
func (s *memoryStore) Participations() ParticipationRepository { return memoryParticipations{s} }
func (s *memoryStore) Teams() TeamRepository                   { return memoryTeams{s} }
func (s *memoryStore) Players() PlayerRepository               { return memoryPlayers{s} }
func (s *memoryStore) Transitions() TransitionRepository       { return memoryTransitions{s} }

func (s *memoryStore) SupportsTransactions() bool { return false }

func (s *memoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, s)
}

type memoryUsers struct{ s *memoryStore }

func (r memoryUsers) conflict(u *models.User) error {
	for id, other := range r.s.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) {
			return ErrUserEmailConflict
		}
		if u.PhoneNumber != nil && other.PhoneNumber != nil && *u.PhoneNumber == *other.PhoneNumber &&
			stringValue(u.Country) == stringValue(other.Country) {
			return ErrUserPhoneConflict
		}
	}
	return nil
}

func (r memoryUsers) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("users.Create"); err != nil {
		return err
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if err := r.conflict(u); err != nil {
		return err
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = *u
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r memoryUsers) Update(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("users.Update"); err != nil {
		return err
	}
	if _, ok := r.s.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	if err := r.conflict(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	r.s.users[u.ID] = *u
	return nil
}

func (r memoryUsers) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r memoryUsers) CountByEmail(_ context.Context, email string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, u := range r.s.users {
		if u.Email == email {
			n++
		}
	}
	return n, nil
}

type memoryCompetitions struct{ s *memoryStore }

func (r memoryCompetitions) Create(_ context.Context, c *models.Competition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("competitions.Create"); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, ok := r.s.users[c.OrganizerID]; !ok {
		return ErrInvalidReference
	}
	for _, other := range r.s.competitions {
		if other.JoinCode == c.JoinCode {
			return ErrJoinCodeConflict
		}
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.competitions[c.ID] = *c
	return nil
}

func (r memoryCompetitions) GetByID(_ context.Context, id uuid.UUID) (*models.Competition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.competitions[id]
	if !ok {
		return nil, ErrCompetitionNotFound
	}
	return &c, nil
}

func (r memoryCompetitions) GetByJoinCode(_ context.Context, joinCode string) (*models.Competition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.competitions {
		if c.JoinCode == joinCode {
			c := c
			return &c, nil
		}
	}
	return nil, ErrCompetitionNotFound
}

func (r memoryCompetitions) List(_ context.Context, filter models.CompetitionFilter) ([]*models.Competition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Competition, 0)
	for _, c := range r.s.competitions {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && c.Category != *filter.Category {
			continue
		}
		if filter.OrganizerID != nil && c.OrganizerID != *filter.OrganizerID {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (r memoryCompetitions) Update(_ context.Context, c *models.Competition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.competitions[c.ID]
	if !ok {
		return ErrCompetitionNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	stored.Name = c.Name
	stored.Category = c.Category
	stored.Description = c.Description
	stored.Location = c.Location
	stored.MaxParticipants = c.MaxParticipants
	stored.RegistrationDeadline = c.RegistrationDeadline
	stored.StartTime = c.StartTime
	stored.EndTime = c.EndTime
	stored.Rules = c.Rules
	stored.UpdatedAt = c.UpdatedAt
	r.s.competitions[c.ID] = stored
	return nil
}

func (r memoryCompetitions) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.CompetitionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("competitions.UpdateStatus"); err != nil {
		return err
	}
	c, ok := r.s.competitions[id]
	if !ok || c.Status != from {
		return ErrStatusConflict
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	r.s.competitions[id] = c
	return nil
}

// Delete cascades to participations, teams, players and transitions like the SQL schema does.
func (r memoryCompetitions) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.competitions[id]; !ok {
		return ErrCompetitionNotFound
	}
	delete(r.s.competitions, id)
	for pid, p := range r.s.participations {
		if p.CompetitionID == id {
			delete(r.s.participations, pid)
		}
	}
	for tid, t := range r.s.teams {
		if t.CompetitionID != id {
			continue
		}
		delete(r.s.teams, tid)
		for plid, pl := range r.s.players {
			if pl.TeamID == tid {
				delete(r.s.players, plid)
			}
		}
	}
	kept := r.s.transitions[:0]
	for _, t := range r.s.transitions {
		if t.CompetitionID != id {
			kept = append(kept, t)
		}
	}
	r.s.transitions = kept
	return nil
}

func (r memoryCompetitions) ListForStatusSweep(_ context.Context, now time.Time) ([]*models.Competition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fail("competitions.ListForStatusSweep"); err != nil {
		return nil, err
	}
	out := make([]*models.Competition, 0)
	for _, c := range r.s.competitions {
		due := false
		switch c.Status {
		case models.StatusOpen:
			due = !c.StartTime.After(now) || (c.RegistrationDeadline != nil && !c.RegistrationDeadline.After(now))
		case models.StatusClosed:
			due = !c.StartTime.After(now)
		case models.StatusInProgress:
			due = !c.EndTime.IsZero() && !c.EndTime.After(now)
		}
		if due {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type memoryParticipations struct{ s *memoryStore }

func (r memoryParticipations) activeConflict(p *models.Participation) bool {
	if !p.Status.Active() {
		return false
	}
	for id, other := range r.s.participations {
		if id != p.ID && other.CompetitionID == p.CompetitionID && other.UserID == p.UserID && other.Status.Active() {
			return true
		}
	}
	return false
}

func (r memoryParticipations) Create(_ context.Context, p *models.Participation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("participations.Create"); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := r.s.competitions[p.CompetitionID]; !ok {
		return ErrCompetitionNotFound
	}
	if _, ok := r.s.users[p.UserID]; !ok {
		return ErrUserNotFound
	}
	if p.TeamID != nil {
		if _, ok := r.s.teams[*p.TeamID]; !ok {
			return ErrTeamNotFound
		}
	}
	if r.activeConflict(p) {
		return ErrParticipationConflict
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.participations[p.ID] = *p
	return nil
}

func (r memoryParticipations) GetByID(_ context.Context, id uuid.UUID) (*models.Participation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.participations[id]
	if !ok {
		return nil, ErrParticipationNotFound
	}
	return &p, nil
}

func (r memoryParticipations) FindActive(_ context.Context, competitionID, userID uuid.UUID) (*models.Participation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fail("participations.FindActive"); err != nil {
		return nil, err
	}
	for _, p := range r.s.participations {
		if p.CompetitionID == competitionID && p.UserID == userID && p.Status.Active() {
			p := p
			return &p, nil
		}
	}
	return nil, ErrParticipationNotFound
}

func (r memoryParticipations) list(match func(models.Participation) bool, newestFirst bool) []*models.Participation {
	out := make([]*models.Participation, 0)
	for _, p := range r.s.participations {
		if match(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r memoryParticipations) ListByCompetition(_ context.Context, competitionID uuid.UUID, status *models.ParticipationStatus) ([]*models.Participation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.list(func(p models.Participation) bool {
		return p.CompetitionID == competitionID && (status == nil || p.Status == *status)
	}, false), nil
}

func (r memoryParticipations) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Participation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.list(func(p models.Participation) bool { return p.UserID == userID }, true), nil
}

func (r memoryParticipations) Update(_ context.Context, p *models.Participation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.participations[p.ID]; !ok {
		return ErrParticipationNotFound
	}
	if r.activeConflict(p) {
		return ErrParticipationConflict
	}
	p.UpdatedAt = time.Now().UTC()
	r.s.participations[p.ID] = *p
	return nil
}

func (r memoryParticipations) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.participations[id]; !ok {
		return ErrParticipationNotFound
	}
	delete(r.s.participations, id)
	return nil
}

func (r memoryParticipations) CountByStatus(_ context.Context, competitionID uuid.UUID) (map[models.ParticipationStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fail("participations.CountByStatus"); err != nil {
		return nil, err
	}
	counts := make(map[models.ParticipationStatus]int)
	for _, p := range r.s.participations {
		if p.CompetitionID == competitionID {
			counts[p.Status]++
		}
	}
	return counts, nil
}

type memoryTeams struct{ s *memoryStore }

func (r memoryTeams) Create(_ context.Context, t *models.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("teams.Create"); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, ok := r.s.competitions[t.CompetitionID]; !ok {
		return ErrCompetitionNotFound
	}
	t.CreatedAt = time.Now().UTC()
	stored := *t
	stored.Players = nil
	r.s.teams[t.ID] = stored
	return nil
}

func (r memoryTeams) GetByID(_ context.Context, id uuid.UUID) (*models.Team, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return &t, nil
}

func (r memoryTeams) ListByCompetition(_ context.Context, competitionID uuid.UUID) ([]*models.Team, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Team, 0)
	for _, t := range r.s.teams {
		if t.CompetitionID == competitionID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memoryTeams) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[id]; !ok {
		return ErrTeamNotFound
	}
	delete(r.s.teams, id)
	for pid, p := range r.s.players {
		if p.TeamID == id {
			delete(r.s.players, pid)
		}
	}
	return nil
}

type memoryPlayers struct{ s *memoryStore }

func (r memoryPlayers) Create(_ context.Context, p *models.Player) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("players.Create"); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := r.s.teams[p.TeamID]; !ok {
		return ErrTeamNotFound
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.players[p.ID] = *p
	return nil
}

func (r memoryPlayers) GetByID(_ context.Context, id uuid.UUID) (*models.Player, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return &p, nil
}

func (r memoryPlayers) ListByTeam(_ context.Context, teamID uuid.UUID) ([]*models.Player, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Player, 0)
	for _, p := range r.s.players {
		if p.TeamID == teamID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (r memoryPlayers) Update(_ context.Context, p *models.Player) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.players[p.ID]
	if !ok {
		return ErrPlayerNotFound
	}
	p.TeamID = stored.TeamID
	p.CreatedAt = stored.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	r.s.players[p.ID] = *p
	return nil
}

func (r memoryPlayers) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.players[id]; !ok {
		return ErrPlayerNotFound
	}
	delete(r.s.players, id)
	return nil
}

func (r memoryPlayers) DeleteByTeam(_ context.Context, teamID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, p := range r.s.players {
		if p.TeamID == teamID {
			delete(r.s.players, id)
		}
	}
	return nil
}

type memoryTransitions struct{ s *memoryStore }

func (r memoryTransitions) Create(_ context.Context, t *models.StatusTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("transitions.Create"); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	r.s.transitions = append(r.s.transitions, *t)
	return nil
}

func (r memoryTransitions) ListByCompetition(_ context.Context, competitionID uuid.UUID) ([]*models.StatusTransition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.StatusTransition, 0)
	for _, t := range r.s.transitions {
		if t.CompetitionID == competitionID {
			t := t
			out = append(out, &t)
		}
	}
	return out, nil
}

func paginate[T interface{}](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
