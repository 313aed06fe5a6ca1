package models

import (
	"database/sql/driver"
	"fmt"
)

type Chain string

const (
	Ethereum Chain = "ethereum"
	Near     Chain = "near"
	Bitcoin  Chain = "bitcoin"
)

var Chains = []Chain{Ethereum, Near, Bitcoin}

func (c Chain) IsValid() bool {
	return c == Ethereum || c == Near || c == Bitcoin
}

func (c Chain) String() string {
	return string(c)
}

func (c *Chain) Scan(value interface{}) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("failed to scan Chain: expected string, got %T", value)
	}
	*c = Chain(str)

	return nil
}

func (c Chain) Value() (driver.Value, error) {
	return string(c), nil
}

func CreateChainEnumSQL() string {
	return `CREATE TYPE "public"."chain" AS ENUM (
		'ethereum',
		'near',
		'bitcoin'
	);
	`
}

func DropChainEnumSQL() string {
	return `DROP TYPE IF EXISTS "public"."chain";`
}
