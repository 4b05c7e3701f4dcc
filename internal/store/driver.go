package store

// The sqlite3 driver is registered by this blank import. FloatTech/sqlite is
// a cross-compile-friendly fork of mattn/go-sqlite3 that registers under the
// same "sqlite3" database/sql driver name.
import (
	_ "github.com/FloatTech/sqlite"
)

const driverName = "sqlite3"
