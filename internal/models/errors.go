package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrLockTimeout       = errors.New("timed out waiting for ledger lock")
	ErrTemplateStructure = errors.New("template structure error")
	ErrAssetUnavailable  = errors.New("asset unavailable")
	ErrRender            = errors.New("render failed")
	ErrExternalService   = errors.New("external service error")
	ErrDuplicateID       = errors.New("mo id already in ledger")
)
