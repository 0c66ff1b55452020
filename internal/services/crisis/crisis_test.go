package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"explicit intent", "quiero suicidarme", true},
		{"sadness is not crisis", "hoy me siento muy triste", false},
		{"upper case", "ESTOY PENSANDO EN SUICIDARME", true},
		{"accents", "Ya no quiero vivir más", true},
		{"accents removed by user", "no quiero vivir mas", true},
		{"method", "pienso en cortarme las venas", true},
		{"extra spaces", "me   quiero\tmatar", true},
		{"idiom about work", "este trabajo me mata de aburrimiento", false},
		{"tired", "estoy cansada de todo", false},
		{"anxiety", "tengo mucha ansiedad y no puedo dormir", false},
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"laughing idiom", "me muero de risa", false},
		{"self harm", "he pensado en hacerme daño", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "que dia tan dificil", Normalize("  Qué DÍA tan  difícil "))
	assert.Equal(t, "hacerme dano", Normalize("HACERME DAÑO"))
}
