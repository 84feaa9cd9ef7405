package main

import (
	"github.com/dgarmol/academia/storage/database"
)

var migrateRunFunc = database.MigrateCommand // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrateRunFunc(cli.db, args[0], args[1:]...)
}
