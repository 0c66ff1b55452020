// Package crisis распознает явные высказывания о намерении причинить себе вред.
//
// Список фраз намеренно узкий: обычные жалобы на настроение не должны
// срабатывать, только прямые упоминания намерения или способа.
package crisis

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// phrases хранятся в нормализованном виде: нижний регистр, без диакритики.
var phrases = []string{
	"suicidarme",
	"me quiero suicidar",
	"quiero morirme",
	"quiero matarme",
	"me quiero matar",
	"voy a matarme",
	"me voy a matar",
	"quitarme la vida",
	"me quitare la vida",
	"acabar con mi vida",
	"terminar con mi vida",
	"no quiero seguir viviendo",
	"no quiero vivir mas",
	"hacerme dano",
	"cortarme las venas",
	"autolesion",
	"lastimarme a proposito",
}

// Normalize приводит текст к виду, в котором хранятся фразы: NFD, удаление
// диакритических знаков, NFC, нижний регистр и схлопывание пробелов.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// Detect чистая функция без состояния: true, если текст содержит одну из фраз.
func Detect(text string) bool {
	normalized := Normalize(text)
	if normalized == "" {
		return false
	}
	for _, p := range phrases {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}
