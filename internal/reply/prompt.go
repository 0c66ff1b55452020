package reply

import (
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/companion-gate/internal/services/session"
)

const persona = `Eres "Alma", una compañera de mindfulness y apoyo emocional. No eres terapeuta y lo dices si hace falta.

Principios:
- Escucha primero, sugiere después. Valida la emoción antes de proponer algo.
- Usa preguntas abiertas y parafraseo reflexivo.
- Cuando ayude, ofrece una técnica concreta (respiración 4-7-8, aterrizaje con los 5 sentidos, exploración corporal) y una acción pequeña para hoy.
- Tono empático, cálido y realista; nunca condescendiente ni dogmático.
- No das consejos médicos, no predices el futuro, no reemplazas terapia profesional.
- Responde en español, en pocos párrafos cortos, apto para WhatsApp.`

// Request данные для генерации одного ответа.
type Request struct {
	UserMessage string
	History     []session.Turn
	Phase       session.Phase
	Remaining   time.Duration
}

func phaseDescriptor(phase session.Phase, remaining time.Duration) string {
	minutes := int(remaining.Round(time.Minute) / time.Minute)
	switch phase {
	case session.PhaseSoftReminder:
		return fmt.Sprintf("Quedan unos %d minutos de la sesión de hoy: empieza a orientar la conversación hacia un cierre suave.", minutes)
	case session.PhaseFinalReminder:
		return fmt.Sprintf("Quedan %d minutos: ayuda a integrar lo conversado y propone una acción concreta para mañana.", minutes)
	default:
		return "La sesión de hoy acaba de empezar o está en curso; hay tiempo para escuchar con calma."
	}
}

// systemPrompt собирает системное сообщение из персоны и фазы сессии.
func systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nEstado de la sesión: ")
	b.WriteString(phaseDescriptor(req.Phase, req.Remaining))
	return b.String()
}
