// Package sqltext quotes identifiers and literals for Athena SQL.
package sqltext

import "strings"

// Ident double-quotes an identifier, doubling embedded quotes.
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedIdent quotes each dot-separated part, so "db.table" becomes "db"."table".
func QualifiedIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = Ident(p)
	}
	return strings.Join(parts, ".")
}

// Literal single-quotes a string literal, doubling embedded quotes.
func Literal(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
