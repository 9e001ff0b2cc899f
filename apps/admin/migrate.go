package main

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/danileyton/epicereport-sub000/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(args []string) error {
	dir, err := database.PrepareGoose(cli.engine)
	if err != nil {
		return err
	}
	return gooseRunFunc(context.Background(), args[0], cli.db, dir, args[1:]...)
}
