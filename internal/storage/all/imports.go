// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories with the storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "postgres" (dashboard/internal/storage/postgres)
//   - "mssql"    (dashboard/internal/storage/mssql)
//   - "mysql"    (dashboard/internal/storage/mysql)
//   - "sqlite"   (dashboard/internal/storage/sqlite)
//
// Typical usage (in cmd/dashctl or a similar wiring layer):
//
//	import _ "dashboard/internal/storage/all"
//
//	eng, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
//	if err != nil {
//	    // handle error
//	}
//	defer eng.Close()
package all

import (
	_ "dashboard/internal/storage/mssql"
	_ "dashboard/internal/storage/mysql"
	_ "dashboard/internal/storage/postgres"
	_ "dashboard/internal/storage/sqlite"
)
