package main

import (
	"errors"

	apperrors "github.com/odvcencio/diffapply/pkg/errors"
)

const (
	exitFailure = 1
	exitConfig  = 2
	exitRemote  = 3
	exitApply   = 4
)

type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return exitFailure
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

// exitCodeForError prefers an explicit code, then maps the error taxonomy.
func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	switch {
	case apperrors.IsConfigurationError(err):
		return exitConfig
	case apperrors.IsRemoteServiceError(err), apperrors.IsEmptyResult(err):
		return exitRemote
	case apperrors.IsApplyError(err):
		return exitApply
	}
	return exitFailure
}
