package repositories

import (
	"strings"

	"biodata/internal/models"
)

// selectExpr renders the read expression for a biodata column. Dates are
// formatted in SQL so they scan into plain strings.
func selectExpr(column string) string {
	if column == "date_of_birth" {
		return "COALESCE(to_char(date_of_birth, 'YYYY-MM-DD'), '')"
	}
	return "COALESCE(" + column + ", '')"
}

func biodataSelectList() string {
	cols := models.BiodataColumns()
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = selectExpr(c)
	}
	return strings.Join(exprs, ", ")
}

func biodataInsertList() string {
	return strings.Join(models.BiodataColumns(), ", ")
}

func biodataValues(b *models.Biodata) []any {
	fields := b.Fields()
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = nullIfEmpty(*f.Ptr)
	}
	return out
}

func biodataDest(b *models.Biodata) []any {
	fields := b.Fields()
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f.Ptr
	}
	return out
}

// IsEditableColumn reports whether an admin edit may touch the column.
func IsEditableColumn(column string) bool {
	switch column {
	case "main_photo_url", "side_photo_url":
		return true
	}
	for _, c := range models.BiodataColumns() {
		if c == column {
			return true
		}
	}
	return false
}
