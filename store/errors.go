package store

import (
	"fmt"

	"github.com/hatlonely/tabdb/schema"
)

// StorageError 后端拒绝了某个操作，errors.Is(err, schema.ErrStorage) 为 true
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s on table %q failed: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == schema.ErrStorage
}

func storageError(op string, table string, err error) error {
	return &StorageError{Op: op, Table: table, Err: err}
}
