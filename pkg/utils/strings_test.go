package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Platba Kartou", Capitalize("PLATBA KARTOU"))
	assert.Equal(t, "", Capitalize(""))
}

func TestFoldLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Kód banky", "kod banky"},
		{"KOD  BANKY ", "kod banky"},
		{"Zpráva pro příjemce", "zprava pro prijemce"},
		{"Měna", "mena"},
		{"Protiúčet", "protiucet"},
		{"Amount", "amount"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FoldLabel(tt.in), tt.in)
	}
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "/periods/***/2024-01-01", RedactSecret("/periods/abc123/2024-01-01", "abc123"))
	assert.Equal(t, "unchanged", RedactSecret("unchanged", ""))
}
