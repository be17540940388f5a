package main

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCheckLength(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays", "jazz", 10, "jazz"},
		{"exact stays", "jazz", 4, "jazz"},
		{"long truncates", "a very long station name", 6, "a very…"},
		{"multibyte label truncates on runes", "Hörspiel für Kinder", 4, "Hörs…"},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkLength(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
