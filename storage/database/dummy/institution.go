package dummydb

import (
	"context"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/institution"
)

type institutionRepository struct {
	instDB *institutionTable
	sedeDB *sedeTable
}

var _ institution.Repository = (*institutionRepository)(nil)

func NewInstitutionRepository(db *DB) institution.Repository {
	return &institutionRepository{instDB: db.institution, sedeDB: db.sede}
}

func (repo *institutionRepository) CreateInstitution(_ context.Context, inst institution.Institution) (institution.Institution, error) {
	repo.instDB.Lock()
	defer repo.instDB.Unlock()

	inst.ID = uuid.New().String()
	repo.instDB.table[inst.ID] = &inst
	return inst, nil
}

func (repo *institutionRepository) GetInstitutionByID(_ context.Context, id string) (institution.Institution, error) {
	repo.instDB.RLock()
	defer repo.instDB.RUnlock()

	if inst, ok := repo.instDB.table[id]; ok {
		return *inst, nil
	}
	return institution.Institution{}, institution.ErrNotFound
}

func (repo *institutionRepository) QueryInstitutions(_ context.Context) ([]institution.Institution, error) {
	repo.instDB.RLock()
	defer repo.instDB.RUnlock()

	insts := make([]institution.Institution, 0, len(repo.instDB.table))
	for _, inst := range repo.instDB.table {
		insts = append(insts, *inst)
	}
	return insts, nil
}

func (repo *institutionRepository) UpdateInstitution(_ context.Context, inst institution.Institution) (institution.Institution, error) {
	repo.instDB.Lock()
	defer repo.instDB.Unlock()

	if _, ok := repo.instDB.table[inst.ID]; !ok {
		return institution.Institution{}, institution.ErrNotFound
	}
	repo.instDB.table[inst.ID] = &inst
	return inst, nil
}

func (repo *institutionRepository) CreateSede(_ context.Context, sede institution.Sede) (institution.Sede, error) {
	repo.sedeDB.Lock()
	defer repo.sedeDB.Unlock()

	sede.ID = uuid.New().String()
	repo.sedeDB.table[sede.ID] = &sede
	return sede, nil
}

func (repo *institutionRepository) GetSedeByID(_ context.Context, id string) (institution.Sede, error) {
	repo.sedeDB.RLock()
	defer repo.sedeDB.RUnlock()

	if sede, ok := repo.sedeDB.table[id]; ok {
		return *sede, nil
	}
	return institution.Sede{}, institution.ErrSedeNotFound
}

func (repo *institutionRepository) GetSedeBySupervisor(_ context.Context, supervisorID string) (institution.Sede, error) {
	repo.sedeDB.RLock()
	defer repo.sedeDB.RUnlock()

	for _, sede := range repo.sedeDB.table {
		if sede.SupervisorID.Valid && sede.SupervisorID.String == supervisorID {
			return *sede, nil
		}
	}
	return institution.Sede{}, institution.ErrSedeNotFound
}

func (repo *institutionRepository) QuerySedes(_ context.Context, sc core.Scope) ([]institution.Sede, error) {
	repo.sedeDB.RLock()
	defer repo.sedeDB.RUnlock()

	var sedes []institution.Sede
	for _, sede := range repo.sedeDB.table {
		target := core.ScopeTarget{
			ID:            sede.ID,
			InstitutionID: sede.InstitutionID,
			SedeID:        null.StringFrom(sede.ID),
		}
		if sc.Matches(target) {
			sedes = append(sedes, *sede)
		}
	}
	return sedes, nil
}

func (repo *institutionRepository) UpdateSede(_ context.Context, sede institution.Sede) (institution.Sede, error) {
	repo.sedeDB.Lock()
	defer repo.sedeDB.Unlock()

	orig, ok := repo.sedeDB.table[sede.ID]
	if !ok {
		return institution.Sede{}, institution.ErrSedeNotFound
	}
	sede.SupervisorID = orig.SupervisorID
	repo.sedeDB.table[sede.ID] = &sede
	return sede, nil
}

func (repo *institutionRepository) SetSedeSupervisor(_ context.Context, sedeID string, supervisorID null.String) error {
	repo.sedeDB.Lock()
	defer repo.sedeDB.Unlock()

	sede, ok := repo.sedeDB.table[sedeID]
	if !ok {
		return institution.ErrSedeNotFound
	}
	sede.SupervisorID = supervisorID
	return nil
}

func (repo *institutionRepository) DeleteSedesByID(_ context.Context, ids ...string) error {
	repo.sedeDB.Lock()
	defer repo.sedeDB.Unlock()

	for _, id := range ids {
		delete(repo.sedeDB.table, id)
	}
	return nil
}
