package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/institution"
	"github.com/dgarmol/academia/core/user"
)

// createAdmin bootstraps a tenant: it finds or creates the institution and
// provisions (or promotes) an active admin account in it.
func (cli *commandLine) createAdmin(instName, name, uname, email, pwd string) error {
	ctx := context.Background()
	instName = core.CleanString(instName)
	name = core.CleanString(name)
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	inst, err := cli.findOrCreateInstitution(ctx, instName)
	if err != nil {
		return err
	}

	active := true
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUserByUsernameOrEmail(ctx, email)
	}
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:          name,
			Username:      uname,
			Email:         email,
			Role:          user.RoleAdmin,
			InstitutionID: inst.ID,
			IsActive:      &active,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	if usr.InstitutionID != inst.ID {
		return fmt.Errorf("user %q belongs to another institution", usr.Username)
	}
	usr.Role = user.RoleAdmin
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &active)
	return err
}

func (cli *commandLine) findOrCreateInstitution(ctx context.Context, name string) (institution.Institution, error) {
	insts, err := cli.instRepo.QueryInstitutions(ctx)
	if err != nil {
		return institution.Institution{}, err
	}
	for _, inst := range insts {
		if inst.Name == name {
			return inst, nil
		}
	}

	now := time.Now().UTC()
	return cli.instRepo.CreateInstitution(ctx, institution.Institution{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
}
