package models

import (
	"database/sql/driver"
	"fmt"
)

type SwapStatus string

const (
	// happy path
	StatusCreated   SwapStatus = "CREATED"
	StatusLocked    SwapStatus = "LOCKED"
	StatusCompleted SwapStatus = "COMPLETED"
	// counter escrow could not be created
	StatusFailed SwapStatus = "FAILED"
	// deadline passed without a reveal
	StatusExpired  SwapStatus = "EXPIRED"
	StatusRefunded SwapStatus = "REFUNDED"
)

func (s SwapStatus) String() string {
	return string(s)
}

func (s SwapStatus) IsValid() bool {
	switch s {
	case StatusCreated, StatusLocked, StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return true
	}

	return false
}

// IsTerminal reports whether no further status change can happen.
func (s SwapStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

func (s *SwapStatus) Scan(value interface{}) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("failed to scan SwapStatus: expected string, got %T", value)
	}
	*s = SwapStatus(str)

	return nil
}

func (s SwapStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func CreateSwapStatusEnumSQL() string {
	return `CREATE TYPE "public"."swap_status" AS ENUM (
		'CREATED',
		'LOCKED',
		'COMPLETED',
		'FAILED',
		'EXPIRED',
		'REFUNDED'
	);
	`
}

func DropSwapStatusEnumSQL() string {
	return `DROP TYPE IF EXISTS "public"."swap_status";`
}
