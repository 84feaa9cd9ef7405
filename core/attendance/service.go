package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/group"
	"github.com/dgarmol/academia/core/user"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrInvalidCode   = errors.New("invalid session code")
	ErrSessionClosed = errors.New("session is closed")
	ErrNotAMember    = errors.New("student does not belong to the group")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSessionByID(ctx context.Context, id string) (Session, error)
		QuerySessions(ctx context.Context, sc core.Scope) ([]Session, error)
		AddCheckIn(ctx context.Context, sessionID string, ci CheckIn) (Session, error)
		CloseSession(ctx context.Context, sessionID string, at time.Time) (Session, error)
	}

	Service interface {
		Open(ctx context.Context, grp group.Group, openedBy user.User) (Session, error)
		GetByID(ctx context.Context, id string) (Session, error)
		Query(ctx context.Context, sc core.Scope) ([]Session, error)
		CheckIn(ctx context.Context, sessionID, code string, student user.User, grp group.Group) (Session, error)
		Close(ctx context.Context, sessionID string) (Session, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Open(ctx context.Context, grp group.Group, openedBy user.User) (Session, error) {
	return svc.repo.CreateSession(ctx, Session{
		InstitutionID: grp.InstitutionID,
		GroupID:       grp.ID,
		SedeID:        grp.SedeID,
		Code:          uuid.New().String(),
		OpenedBy:      openedBy.ID,
		OpenedAt:      time.Now().UTC(),
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, sc core.Scope) ([]Session, error) {
	return svc.repo.QuerySessions(ctx, sc)
}

// CheckIn marks the student present on the session. The presented code must
// match the session's (it is what the scanned QR carried). A repeated
// check-in is idempotent.
func (svc *service) CheckIn(ctx context.Context, sessionID, code string, student user.User, grp group.Group) (Session, error) {
	s, err := svc.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if s.IsClosed() {
		return Session{}, ErrSessionClosed
	}
	if s.Code != code {
		return Session{}, ErrInvalidCode
	}
	if grp.ID != s.GroupID || !grp.HasStudent(student.ID) {
		return Session{}, ErrNotAMember
	}
	if s.HasCheckIn(student.ID) {
		return s, nil
	}
	return svc.repo.AddCheckIn(ctx, s.ID, CheckIn{StudentID: student.ID, At: time.Now().UTC()})
}

func (svc *service) Close(ctx context.Context, sessionID string) (Session, error) {
	s, err := svc.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if s.IsClosed() {
		return s, nil
	}
	return svc.repo.CloseSession(ctx, s.ID, time.Now().UTC())
}
