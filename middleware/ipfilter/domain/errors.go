package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStoreRead  = errors.New("ipfilter: store read failed")
	ErrStoreWrite = errors.New("ipfilter: store write failed")
	// ErrStoreBusy é devolvido quando não há vaga para falar com o store dentro do timeout.
	ErrStoreBusy = errors.New("ipfilter: store busy")
)

type StoreOp string

const (
	OpRead  StoreOp = "read"
	OpWrite StoreOp = "write"
)

// StoreError embrulha falhas do backend. Casa com errors.Is(err, ErrStoreRead)
// ou errors.Is(err, ErrStoreWrite) conforme Op, e com o erro original.
type StoreError struct {
	Op  StoreOp
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ipfilter: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() []error {
	sentinel := ErrStoreRead
	if e.Op == OpWrite {
		sentinel = ErrStoreWrite
	}
	return []error{sentinel, e.Err}
}
