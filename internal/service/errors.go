package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("service not found")
	ErrExecutableMissing = errors.New("executable missing")
	ErrSpawnFailed       = errors.New("spawn failed")
	ErrRestartLimit      = errors.New("restart limit reached")
	ErrDependencyCycle   = errors.New("dependency cycle")
)

// DependencyError reports that Service could not start because Dependency
// failed. It unwraps to the dependency's error.
type DependencyError struct {
	Service    string
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("start %s: dependency %s: %v", e.Service, e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
