package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/attendance"
)

type sessionRepository struct {
	db *sessionTable
}

var _ attendance.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) attendance.Repository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) CreateSession(_ context.Context, s attendance.Session) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s.ID = uuid.New().String()
	repo.db.table[s.ID] = &s
	return s, nil
}

func (repo *sessionRepository) GetSessionByID(_ context.Context, id string) (attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.table[id]; ok {
		return *s, nil
	}
	return attendance.Session{}, attendance.ErrNotFound
}

func (repo *sessionRepository) QuerySessions(_ context.Context, sc core.Scope) ([]attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var sessions []attendance.Session
	for _, s := range repo.db.table {
		target := core.ScopeTarget{
			ID:            s.ID,
			InstitutionID: s.InstitutionID,
			SedeID:        s.SedeID,
			GroupID:       s.GroupID,
		}
		if sc.Matches(target) {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

func (repo *sessionRepository) AddCheckIn(_ context.Context, sessionID string, ci attendance.CheckIn) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.table[sessionID]
	if !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	if !s.HasCheckIn(ci.StudentID) {
		s.CheckIns = append(s.CheckIns, ci)
	}
	return *s, nil
}

func (repo *sessionRepository) CloseSession(_ context.Context, sessionID string, at time.Time) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.table[sessionID]
	if !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	s.ClosedAt.SetValid(at)
	return *s, nil
}
