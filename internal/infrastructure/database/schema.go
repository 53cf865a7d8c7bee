package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// DictTypesColumns holds the columns for the "dict_types" table.
	DictTypesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "type", Type: field.TypeString, Unique: true, Size: 128},
		{Name: "title", Type: field.TypeString, Default: ""},
		{Name: "remark", Type: field.TypeString, Default: ""},
	}
	// DictTypesTable holds the schema information for the "dict_types" table.
	DictTypesTable = &schema.Table{
		Name:       "dict_types",
		Columns:    DictTypesColumns,
		PrimaryKey: []*schema.Column{DictTypesColumns[0]},
	}
	// DictValuesColumns holds the columns for the "dict_values" table.
	DictValuesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "dict_type", Type: field.TypeString, Size: 128},
		{Name: "value", Type: field.TypeString, Size: 255},
		{Name: "title", Type: field.TypeString, Default: ""},
		{Name: "parent_value", Type: field.TypeString, Default: ""},
		{Name: "sorted", Type: field.TypeInt, Default: 0},
	}
	// DictValuesTable holds the schema information for the "dict_values" table.
	DictValuesTable = &schema.Table{
		Name:       "dict_values",
		Columns:    DictValuesColumns,
		PrimaryKey: []*schema.Column{DictValuesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "dictvalue_dict_type_value",
				Unique:  true,
				Columns: []*schema.Column{DictValuesColumns[1], DictValuesColumns[2]},
			},
			{
				Name:    "dictvalue_dict_type_sorted",
				Unique:  false,
				Columns: []*schema.Column{DictValuesColumns[1], DictValuesColumns[5]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		DictTypesTable,
		DictValuesTable,
	}
)

// Migrate creates or upgrades the dictionary tables.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate dictionary tables: %w", err)
	}
	return nil
}
