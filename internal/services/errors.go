package services

import (
	"errors"

	"github.com/mugisham37/product-management-interview-project/internal/models"
)

var ErrBadRequest = errors.New("bad request")

// ConflictError reports a refused versioned write.
type ConflictError struct {
	Info models.ConflictInfo
}

func (e *ConflictError) Error() string {
	return e.Info.Message
}
