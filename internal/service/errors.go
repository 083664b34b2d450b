// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNoFilesProvided — запрос загрузки не содержит файлов.
	ErrNoFilesProvided = fmt.Errorf("%w: файлы не переданы", ErrValidation)
	// ErrTooManyFiles — превышен лимит количества файлов в запросе.
	ErrTooManyFiles = fmt.Errorf("%w: слишком много файлов", ErrValidation)
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
)

// IOError — ошибка работы с директорией контента.
type IOError struct {
	// Op — операция (stage, commit, exists, open)
	Op string
	// Name — имя артефакта
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ошибка ввода-вывода (%s %s): %v", e.Op, e.Name, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// PersistenceError — ошибка работы с базой данных.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ошибка базы данных (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
