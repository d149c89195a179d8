package repository

import "errors"

// Ошибки слоя репозиториев
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidData неверные данные для сохранения
	ErrInvalidData = errors.New("invalid data")

	// ErrVersionConflict версия записи изменилась между чтением и записью
	ErrVersionConflict = errors.New("version conflict")
)
