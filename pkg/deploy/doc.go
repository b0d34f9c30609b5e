// Package deploy runs the release steps of the LaJournal backend: dependency sync,
// static asset collection and database migration.
// Steps always run in that order and the first failing command aborts the run.
// Commands are interpreted by mvdan.cc/sh so the same strings work on every platform
// the backend is deployed from.
package deploy
