package store

import "github.com/osaurus/memory-core/internal/memerr"

func NewOpenError(err error) error      { return memerr.NewStorageError("not_open", err) }
func NewMigrationError(err error) error { return memerr.NewStorageError("migration_failed", err) }
func NewConflictError(err error) error  { return memerr.NewStorageError("conflict", err) }
func NewPrepareError(err error) error   { return memerr.NewStorageError("prepare", err) }
func NewExecuteError(err error) error   { return memerr.NewStorageError("execute", err) }
