package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for duplicate-key writes.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres duplicate-key error,
// e.g. a second assignment for the same student and course.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
