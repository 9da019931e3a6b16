package index

import "errors"

var (
	ErrSchemaTooNew = errors.New("builds index schema is too new for this tooling")
	ErrSchemaTooOld = errors.New("builds index schema predates supported versions")
	ErrEmptyIndex   = errors.New("builds index has no builds")
	ErrUnknownBuild = errors.New("build not found in index")
	ErrArchExists   = errors.New("build is already registered for this architecture")
)
