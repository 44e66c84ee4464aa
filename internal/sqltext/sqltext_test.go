package sqltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoting(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ident", Ident("ticker"), `"ticker"`},
		{"ident with quote", Ident(`we"ird`), `"we""ird"`},
		{"qualified", QualifiedIdent("markets.prices"), `"markets"."prices"`},
		{"literal", Literal("ABEV3"), `'ABEV3'`},
		{"literal with quote", Literal("O'Brien"), `'O''Brien'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
