package identifier

import (
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

var sqlName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Scope names the table and column an identifier must be unique in, and the
// unique constraint that guards that column.
type Scope struct {
	Table      string
	Column     string
	Constraint string
}

var (
	AccountIDs    = Scope{Table: "accounts", Column: "internal_id", Constraint: "accounts_pkey"}
	SessionTokens = Scope{Table: "sessions", Column: "token", Constraint: "sessions_token_key"}
	ClassIDs      = Scope{Table: "classes", Column: "class_id", Constraint: "classes_pkey"}
	CategoryIDs   = Scope{Table: "categories", Column: "category_id", Constraint: "categories_pkey"}
	AssignmentIDs = Scope{Table: "assignments", Column: "assignment_id", Constraint: "assignments_pkey"}
	TermIDs       = Scope{Table: "terms", Column: "term_id", Constraint: "terms_pkey"}
)

func (s Scope) String() string {
	return s.Table + "." + s.Column
}

// Validate rejects table or column names that are not plain lowercase SQL identifiers.
func (s Scope) Validate() error {
	if !sqlName.MatchString(s.Table) {
		return fmt.Errorf("identifier: invalid table name %q", s.Table)
	}
	if !sqlName.MatchString(s.Column) {
		return fmt.Errorf("identifier: invalid column name %q", s.Column)
	}
	return nil
}

func (s Scope) quotedTable() string {
	return pgx.Identifier{s.Table}.Sanitize()
}

func (s Scope) quotedColumn() string {
	return pgx.Identifier{s.Column}.Sanitize()
}
