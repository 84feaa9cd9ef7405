// Package dummydb is an in-memory database used by tests and local hacking.
// It mirrors the scope and filter semantics of the SQL repositories.
package dummydb

import (
	"sync"

	"github.com/dgarmol/academia/core/attendance"
	"github.com/dgarmol/academia/core/group"
	"github.com/dgarmol/academia/core/institution"
	"github.com/dgarmol/academia/core/user"
)

type (
	DB struct {
		user        *userTable
		institution *institutionTable
		sede        *sedeTable
		group       *groupTable
		session     *sessionTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	institutionTable struct {
		sync.RWMutex
		table map[string]*institution.Institution
	}

	sedeTable struct {
		sync.RWMutex
		table map[string]*institution.Sede
	}

	groupTable struct {
		sync.RWMutex
		table map[string]*group.Group
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*attendance.Session
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		institution: &institutionTable{table: make(map[string]*institution.Institution)},
		sede:        &sedeTable{table: make(map[string]*institution.Sede)},
		group:       &groupTable{table: make(map[string]*group.Group)},
		session:     &sessionTable{table: make(map[string]*attendance.Session)},
	}
	return db, nil
}
