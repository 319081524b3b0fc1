package repository

import "errors"

var (
	// ErrOutOfOrderRun - runID не больше последнего добавленного в слот
	ErrOutOfOrderRun = errors.New("out of order run")
	// ErrConflict - параллельная запись в тот же слот выиграла гонку
	ErrConflict = errors.New("concurrent append conflict")
	// ErrNotFound - запись не найдена
	ErrNotFound = errors.New("not found")
)
