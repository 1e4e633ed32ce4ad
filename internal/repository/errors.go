package repository

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNotFound = errors.New("запись не найдена")
	// ErrEmptyFilter не даёт обновить или удалить все строки разом.
	ErrEmptyFilter = errors.New("update/delete без фильтра запрещён")
)

const (
	CodeUndefinedTable   = "42P01"
	CodeTableNotInSchema = "PGRST205"
	CodeForeignKey       = "23503"
	CodeUniqueViolation  = "23505"
)

// Error - структурированная ошибка бэкенда.
type Error struct {
	Resource Resource
	Op       string
	Status   int
	Code     string
	Message  string
	Details  string
	Hint     string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.Resource)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func NewRelationMissing(resource Resource, op string) *Error {
	return &Error{
		Resource: resource,
		Op:       op,
		Status:   404,
		Code:     CodeUndefinedTable,
		Message:  fmt.Sprintf(`relation "public.%s" does not exist`, resource),
	}
}

var relationMissingRe = regexp.MustCompile(`(?i)relation .* does not exist|could not find the table`)

// IsRelationMissing узнаёт ответ "таблица не создана".
func IsRelationMissing(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Code == CodeUndefinedTable || e.Code == CodeTableNotInSchema {
			return true
		}
		return relationMissingRe.MatchString(e.Message)
	}
	return relationMissingRe.MatchString(err.Error())
}

func IsForeignKeyViolation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeForeignKey
}

func IsUniqueViolation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeUniqueViolation
}
