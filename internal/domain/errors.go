package domain

import (
	"errors"
	"fmt"
)

// Ошибки биллингового ядра
var (
	// ErrNotFound запись не найдена (подписка или план)
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState недопустимый переход статуса подписки
	ErrInvalidState = errors.New("invalid subscription state")

	// ErrAlreadyOnPlan подписка уже на запрошенном плане
	ErrAlreadyOnPlan = errors.New("subscription already on requested plan")

	// ErrValidation неверные входные данные
	ErrValidation = errors.New("validation failed")

	// ErrGateway ошибка платежного шлюза (сбой вызова или таймаут)
	ErrGateway = errors.New("payment gateway error")

	// ErrConcurrencyConflict проигрыш гонки за подписку; вызывающий может
	// повторить запрос со свежим состоянием, ядро само не повторяет
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
)

// NotFoundError представляет ошибку "не найдено" с указанием сущности
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// GatewayError представляет ошибку платежного шлюза
type GatewayError struct {
	Operation   string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *GatewayError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("gateway error [%s] during %s: %s: %v", e.Code, e.Operation, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("gateway error [%s] during %s: %s", e.Code, e.Operation, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *GatewayError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет, является ли ошибка ошибкой шлюза
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// NewGatewayError создает новую ошибку платежного шлюза
func NewGatewayError(operation, code, message string, statusCode int, err error) *GatewayError {
	return &GatewayError{
		Operation:   operation,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// ValidationError представляет ошибку валидации отдельного поля
type ValidationError struct {
	Field   string
	Message string
}

// Error реализует интерфейс error
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
}

// Is проверяет, является ли ошибка ошибкой валидации
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError создает новую ошибку валидации
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidStateError представляет недопустимый переход статуса
type InvalidStateError struct {
	SubscriptionID string
	From           SubscriptionStatus
	To             SubscriptionStatus
}

// Error реализует интерфейс error
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s (subscription_id: %s)", e.From, e.To, e.SubscriptionID)
}

// Is проверяет, является ли ошибка ошибкой состояния
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// NewInvalidStateError создает новую ошибку недопустимого перехода
func NewInvalidStateError(subscriptionID string, from, to SubscriptionStatus) *InvalidStateError {
	return &InvalidStateError{SubscriptionID: subscriptionID, From: from, To: to}
}
