// Command migrations prints the postgres schema for atlas.
package main

import (
	"fmt"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"
	"github.com/40acres/htlc-bridge/database"
	"github.com/40acres/htlc-bridge/database/models"
)

func main() {
	models.RegisterSerializers()

	tables, err := gormschema.New("postgres").Load(database.Models()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load gorm schema: %v\n", err)
		os.Exit(1)
	}

	// Enum types must exist before the tables using them
	if _, err := fmt.Fprint(os.Stdout, database.EnumsSQL(), tables); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}
