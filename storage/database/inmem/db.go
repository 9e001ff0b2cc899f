// Package inmemdb keeps every repository in process memory. It backs the tests and
// the --inmem mode of the apps.
package inmemdb

import (
	"sync"

	"github.com/danileyton/epicereport-sub000/core/delivery"
	"github.com/danileyton/epicereport-sub000/core/followup"
	"github.com/danileyton/epicereport-sub000/core/schedule"
)

type DB struct {
	// a single lock keeps claims atomic across tables
	mutex sync.RWMutex

	pkCount    int64
	schedules  map[int64]*schedule.Schedule
	recipients map[int64]*schedule.Recipient
	followups  map[int64]*followup.Followup
	logs       map[int64]*delivery.Log
}

func Open() *DB {
	return &DB{
		schedules:  make(map[int64]*schedule.Schedule),
		recipients: make(map[int64]*schedule.Recipient),
		followups:  make(map[int64]*followup.Followup),
		logs:       make(map[int64]*delivery.Log),
	}
}

func (db *DB) nextPK() int64 {
	db.pkCount++
	return db.pkCount
}
