// Package types holds the domain model shared by the store, the shielding
// transform and the import/export layers.
package types

import "time"

// Row is a single measurement row keyed by column name.
type Row map[string]float64

// Clone returns an independent copy of the row. A nil row clones to an empty one.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of columns plus rows keyed by those columns.
type Table struct {
	Columns []string `json:"columns"`
	Data    []Row    `json:"data"`
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Data:    make([]Row, len(t.Data)),
	}
	for i, row := range t.Data {
		out.Data[i] = row.Clone()
	}
	return out
}

// Experiment is a named table tracked by the store.
type Experiment struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Columns    []string   `json:"columns" yaml:"columns"`
	Data       []Row      `json:"data" yaml:"data"`
	UploadedBy string     `json:"uploaded_by,omitempty" yaml:"uploaded_by,omitempty"`
	UploadedAt time.Time  `json:"uploaded_at" yaml:"uploaded_at"`
	ModifiedBy string     `json:"modified_by,omitempty" yaml:"modified_by,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// Table returns the experiment's columns and rows as a detached Table.
func (e Experiment) Table() Table {
	return Table{Columns: e.Columns, Data: e.Data}.Clone()
}

// UpdateRequest specifies the fields to replace on an experiment.
// A nil field leaves the stored value untouched.
type UpdateRequest struct {
	Name    *string  `json:"name,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Data    []Row    `json:"data,omitempty"`
}

// Credential is a username/password pair from the credentials document.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
