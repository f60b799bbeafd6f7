package repository

import (
    "fmt"
    "strings"
    "time"
)

// Dialect captures the few statements that differ between MySQL and
// PostgreSQL.  Everything else is written once with ? placeholders and
// rebound by sqlx.
type Dialect struct {
    Name string // "mysql" or "postgres"
}

var (
    MySQL    = Dialect{Name: "mysql"}
    Postgres = Dialect{Name: "postgres"}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driverName string) (Dialect, error) {
    switch driverName {
    case "mysql":
        return MySQL, nil
    case "pgx", "postgres":
        return Postgres, nil
    }
    return Dialect{}, fmt.Errorf("unsupported driver %q", driverName)
}

// lockTimeoutStmt bounds how long the current transaction waits for row
// locks.  InnoDB only accepts whole seconds.
func (d Dialect) lockTimeoutStmt(wait time.Duration) string {
    if wait <= 0 {
        return ""
    }
    if d.Name == "postgres" {
        return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", wait.Milliseconds())
    }
    secs := int(wait.Round(time.Second) / time.Second)
    if secs < 1 {
        secs = 1
    }
    return fmt.Sprintf("SET innodb_lock_wait_timeout = %d", secs)
}

// insertIgnore wraps a multi-row VALUES list so that rows colliding with
// the primary key are silently skipped.
func (d Dialect) insertIgnore(table, columns, conflictKey string, rows int) string {
    tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", strings.Count(columns, ",")+1), ", ") + ")"
    values := strings.TrimSuffix(strings.Repeat(tuple+",", rows), ",")
    if d.Name == "postgres" {
        return "INSERT INTO " + table + " (" + columns + ") VALUES " + values + " ON CONFLICT (" + conflictKey + ") DO NOTHING"
    }
    return "INSERT IGNORE INTO " + table + " (" + columns + ") VALUES " + values
}
