// ABOUTME: Tests for markdown to speech text conversion
// ABOUTME: Covers emphasis, code, links, lists, and joining multiple replies

package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hola ana, dijiste hola", "Hola ana, dijiste hola"},
		{"bold", "Echo: **hola**", "Echo: hola"},
		{"italic", "Bot said: *adiós*", "Bot said: adiós"},
		{"link", "Mira [la guía](https://example.com) ahora", "Mira la guía ahora"},
		{"inline code", "usa `monitor alexa`", "usa monitor alexa"},
		{"list", "- uno\n- dos", "uno dos"},
		{"paragraphs", "uno\n\ndos", "uno dos"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestPlainText_FencedCode(t *testing.T) {
	got := PlainText("Event received:\n```\n{\"a\": 1}\n```")
	assert.Equal(t, `Event received: {"a": 1}`, got)
}

func TestJoin(t *testing.T) {
	got := Join([]string{"Hola **ana**,", "", "¿qué tal?"})
	assert.Equal(t, "Hola ana, ¿qué tal?", got)
}
