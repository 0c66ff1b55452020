package companion

import (
	"fmt"
	"time"
)

// Фиксированные ответы пользователю.
const (
	CrisisText = `Veo que estás pasando por un momento muy difícil.
Como Alma no puedo brindar atención en crisis, te recomiendo contactar *inmediatamente*:

📱 *LÍNEAS NACIONALES 24/7:*
🆘 Línea de la Vida: 800 911 2000
💙 SAPTEL: 55 5259 8121
🚑 Urgencias: 911

🏙️ *EN QUERÉTARO:*
📞 Línea de la Vida Querétaro: 800 008 1100
🏥 Centro de Atención Psicológica UAQ: 442 192 1200 Ext. 6305
🏥 Hospital General de Querétaro: 442 216 4507

*No estás solo. Por favor busca ayuda profesional inmediata.*
Estaré aquí cuando te sientas más estable 🌱`

	ApologyText = "Lo siento, estoy teniendo dificultades técnicas. ¿Podrías intentarlo de nuevo? 🌱"

	NoAccessText = "Tu periodo de prueba con Alma ha terminado 🌱\n\nPara seguir conversando activa tu suscripción mensual ($200 MXN, menos que un café al día). Escríbenos para activarla."

	SessionClosedText = "Nuestra sesión de hoy ha llegado a su fin. Hoy avanzaste un paso más en tu camino interior. Tu contexto está guardado para continuar mañana 💾🌱"

	softNudge  = "\n\n⏳ Nos quedan unos %d minutos de sesión. ¿Cómo te gustaría que cerremos hoy?"
	finalNudge = "\n\n⏳ Quedan %d minutos. Vamos integrando lo que conversamos para cerrar con calma."
	trialNote  = "\n\n🌱 Te quedan %d días de prueba gratuita."
)

// ComeBackText сообщает, через сколько часов и минут откроется новая сессия.
func ComeBackText(untilReset time.Duration) string {
	minutes := int((untilReset + time.Minute - 1) / time.Minute)
	h, m := minutes/60, minutes%60
	var wait string
	switch {
	case h > 0 && m > 0:
		wait = fmt.Sprintf("%d h %d min", h, m)
	case h > 0:
		wait = fmt.Sprintf("%d h", h)
	default:
		wait = fmt.Sprintf("%d min", max(m, 1))
	}
	return fmt.Sprintf("Ya tuvimos nuestra sesión de hoy 🌱 Podremos conversar de nuevo en %s, a partir de la medianoche. Descansa y cuídate.", wait)
}

func minutesLeft(remaining time.Duration) int {
	return max(1, int(remaining.Round(time.Minute)/time.Minute))
}
