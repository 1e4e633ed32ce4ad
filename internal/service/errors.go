package service

import (
	"context"
	"errors"
	"fmt"

	"creatively/internal/capability"
	repo "creatively/internal/repository"
)

const (
	CodeNotFound             = "NOT_FOUND"
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotProvisioned       = "NOT_PROVISIONED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeConflict             = "CONFLICT"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeBackend              = "BACKEND_ERROR"
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Retry   bool
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error { return b.Err }

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(resource repo.Resource, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s не найден(а)", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewNotProvisioned(resource repo.Resource) *BusinessError {
	return &BusinessError{
		Code:    CodeNotProvisioned,
		Message: fmt.Sprintf("Раздел %s ещё не настроен", resource),
		Details: map[string]any{
			"resource":    resource,
			"remediation": capability.Remediation(resource),
		},
		Retry: true,
	}
}

func IsCode(err error, code string) bool {
	var b *BusinessError
	return errors.As(err, &b) && b.Code == code
}

// storeError превращает ошибку хранилища в BusinessError.
func (d *Deps) storeError(resource repo.Resource, id string, err error) error {
	if err == nil {
		return nil
	}
	var b *BusinessError
	if errors.As(err, &b) {
		return b
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case errors.Is(err, repo.ErrNotFound):
		return NewNotFound(resource, id)
	case repo.IsRelationMissing(err):
		d.markMissing(resource)
		return NewNotProvisioned(resource)
	case repo.IsForeignKeyViolation(err):
		return &BusinessError{
			Code:    CodeConflict,
			Message: "Запись используется другими данными",
			Details: map[string]any{"resource": resource, "id": id},
			Err:     err,
		}
	case repo.IsUniqueViolation(err):
		return &BusinessError{
			Code:    CodeConflict,
			Message: "Такая запись уже существует",
			Details: map[string]any{"resource": resource},
			Err:     err,
		}
	}

	return &BusinessError{
		Code:    CodeBackend,
		Message: fmt.Sprintf("Ошибка загрузки %s", resource),
		Details: map[string]any{"resource": resource},
		Retry:   true,
		Err:     err,
	}
}
