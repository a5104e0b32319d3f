// Package dialect implements the DBMS Dialect Classifier (C4): a pure,
// data-driven function mapping a (dbType, errorCode, sqlState) triple to
// a retry/abort decision. It deliberately holds no state and performs no
// I/O so it can be tested in isolation from any real driver.
package dialect

import "log/slog"

// DBType identifies the DBMS a Worker is connected to, which selects
// which row of the classification table applies.
type DBType int

const (
	Unknown DBType = iota
	MySQL
	MariaDB
	SQLServer
	Postgres
	CockroachDB
	Oracle
	DB2
	SQLite
)

func (d DBType) String() string {
	switch d {
	case MySQL:
		return "MySQL"
	case MariaDB:
		return "MariaDB"
	case SQLServer:
		return "SQLServer"
	case Postgres:
		return "Postgres"
	case CockroachDB:
		return "CockroachDB"
	case Oracle:
		return "Oracle"
	case DB2:
		return "DB2"
	case SQLite:
		return "SQLite"
	default:
		return "Unknown"
	}
}

// Action is the classifier's verdict for a database error.
type Action int

const (
	Retry Action = iota
	RetryDifferent
	Fatal
	UnknownRetry
)

func (a Action) String() string {
	switch a {
	case Retry:
		return "RETRY"
	case RetryDifferent:
		return "RETRY_DIFFERENT"
	case Fatal:
		return "FATAL"
	case UnknownRetry:
		return "UNKNOWN_RETRY"
	default:
		return "UNKNOWN_ACTION"
	}
}

// rule is one row of the normative classification table in spec.md §4.4.
// dbTypes is nil for rules that apply to any dbType.
type rule struct {
	dbTypes   []DBType
	errorCode int
	sqlState  string
	action    Action
}

var table = []rule{
	{dbTypes: []DBType{MySQL, MariaDB}, errorCode: 1213, sqlState: "40001", action: Retry},             // deadlock
	{dbTypes: []DBType{MySQL, MariaDB}, errorCode: 1205, sqlState: "41000", action: Retry},             // lock timeout
	{dbTypes: []DBType{SQLServer}, errorCode: 1205, sqlState: "40001", action: Retry},                  // deadlock
	{dbTypes: []DBType{Postgres, CockroachDB}, errorCode: 0, sqlState: "40001", action: Retry},         // serialization
	{dbTypes: []DBType{Postgres}, errorCode: 0, sqlState: "53200", action: Fatal},                      // out of memory
	{dbTypes: []DBType{Postgres}, errorCode: 0, sqlState: "XX000", action: Fatal},                      // internal error
	{dbTypes: []DBType{Oracle}, errorCode: 8177, sqlState: "72000", action: Retry},                     // serialization
	{dbTypes: []DBType{DB2}, errorCode: -911, sqlState: "40001", action: Retry},                        // deadlock
	{dbTypes: []DBType{DB2}, errorCode: 0, sqlState: "57014", action: RetryDifferent},                  // cancelled
	{dbTypes: []DBType{DB2}, errorCode: -952, sqlState: "57014", action: RetryDifferent},                // cancelled
	{dbTypes: nil, errorCode: 0, sqlState: "02000", action: RetryDifferent},                            // no results
}

func matches(dbTypes []DBType, dbType DBType) bool {
	if dbTypes == nil {
		return true
	}
	for _, d := range dbTypes {
		if d == dbType {
			return true
		}
	}
	return false
}

// Classify is the pure function specified in spec.md §4.4. sqlState == ""
// is treated as "null" (no SQLSTATE available), which always yields
// UnknownRetry regardless of dbType or errorCode.
func Classify(dbType DBType, errorCode int, sqlState string) Action {
	if sqlState == "" {
		return UnknownRetry
	}
	for _, r := range table {
		if matches(r.dbTypes, dbType) && r.errorCode == errorCode && r.sqlState == sqlState {
			return r.action
		}
	}
	return UnknownRetry
}

// ClassifyLogged behaves like Classify but additionally logs at warn
// level when the result is UnknownRetry for a non-null SQLSTATE, per
// spec.md §7 item 5: the benchmark continues running (conservative
// default) but the occurrence is surfaced so driver quirks don't hide
// silently.
func ClassifyLogged(logger *slog.Logger, dbType DBType, errorCode int, sqlState string) Action {
	action := Classify(dbType, errorCode, sqlState)
	if action == UnknownRetry && sqlState != "" && logger != nil {
		logger.Warn("unclassified database error, defaulting to retry",
			"dbType", dbType.String(),
			"errorCode", errorCode,
			"sqlState", sqlState)
	}
	return action
}
