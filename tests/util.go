package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core/institution"
	"github.com/dgarmol/academia/core/user"
)

func CreateInstitution(t *testing.T, repo institution.Repository, name string) institution.Institution {
	t.Helper()
	now := time.Now().UTC()
	inst, err := repo.CreateInstitution(context.Background(), institution.Institution{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateInstitution() failed: %v", err)
	}
	return inst
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role user.Role,
	instID string,
	sedeID null.String,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:          name,
		Username:      uname,
		Email:         email,
		Role:          role,
		InstitutionID: instID,
		SedeID:        sedeID,
		IsActive:      &isActive,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
