package model

// VersionInfo contains version and schema information for the application.
type VersionInfo struct {
	AppVersion      string `json:"app_version"`
	DbVersion       int64  `json:"db_version"`
	LatestVersion   int64  `json:"latest_version"`
	Dialect         string `json:"dialect"`
	MigrationNeeded bool   `json:"migration_needed"`
}
