// Package gorm provides GORM-based persistence for rating events and taste profiles.
//
// PostgreSQL is the production backend; SQLite serves local runs and tests:
//
//	store, err := gorm.NewStore(gorm.Config{
//	    Driver:   gorm.DriverSQLite,
//	    DSN:      "/path/to/tasteid.db",
//	    MaxConns: 4,
//	    LogLevel: logger.Silent,
//	})
//
// Profile rows carry a version. ProfileStore.SaveProfile writes only when the
// stored version matches the caller's expectation, so two recomputes of one user
// can never interleave their snapshots.
package gorm
