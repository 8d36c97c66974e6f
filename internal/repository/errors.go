package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lib/pq"
)

// Sentinels produced by Classify. Services translate them into API errors.
var (
	ErrDuplicateSymbolNumber       = errors.New("duplicate symbol number")
	ErrDuplicateRegistrationNumber = errors.New("duplicate registration number")
	ErrDuplicateCollegeCode        = errors.New("duplicate college code")
	ErrDuplicate                   = errors.New("duplicate key")
	ErrMissingReference            = errors.New("referenced row does not exist")
	ErrCapacityInvariant           = errors.New("allocated count would exceed capacity")
	ErrUnavailable                 = errors.New("storage unavailable")
)

const (
	constraintStudentSymbol       = "students_symbol_number_key"
	constraintStudentRegistration = "students_registration_number_key"
	constraintCollegeCode         = "colleges_code_key"
	constraintCenterAllocation    = "exam_centers_allocation_check"
)

// Classify maps driver failures onto the sentinels above, keeping the original error in the chain.
// Errors it does not recognise are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			switch pqErr.Constraint {
			case constraintStudentSymbol:
				return fmt.Errorf("%w: %w", ErrDuplicateSymbolNumber, err)
			case constraintStudentRegistration:
				return fmt.Errorf("%w: %w", ErrDuplicateRegistrationNumber, err)
			case constraintCollegeCode:
				return fmt.Errorf("%w: %w", ErrDuplicateCollegeCode, err)
			}
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case pqErr.Code == "23503":
			return fmt.Errorf("%w: %w", ErrMissingReference, err)
		case pqErr.Code == "23514" && pqErr.Constraint == constraintCenterAllocation:
			return fmt.Errorf("%w: %w", ErrCapacityInvariant, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			// connection exception, insufficient resources, operator intervention
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
