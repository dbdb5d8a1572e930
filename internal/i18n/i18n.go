package i18n

// UI text lookup for the two supported interface languages. Unknown
// languages fall back to Spanish, unknown keys to the key itself so a
// missing entry is visible rather than silent.

const DefaultLanguage = "es"

var texts = map[string]map[string]string{
	"en": {
		"welcome_title":         "🎙️ <b>Welcome to InnerVoice!</b>",
		"audio_received":        "🎵 <b>Audio Received</b>",
		"duration":              "Duration",
		"language":              "Language",
		"mode":                  "Mode",
		"segments":              "Segments",
		"processing":            "⏳ Processing...",
		"transcription_header":  "🎤 <b>Transcription</b>",
		"original_language":     "Original language",
		"translation_header":    "🌐 <b>Translation</b>",
		"english":               "English",
		"processing_complete":   "✅ <b>Processing Complete</b>",
		"time":                  "Time",
		"help_title":            "📖 <b>How to Use InnerVoice</b>",
		"about_title":           "🔐 <b>Privacy-First Voice Transcription</b>",
		"settings_title":        "⚙️ <b>Your Settings</b>",
		"configure":             "Configure your InnerVoice experience:",
		"stats":                 "Stats",
		"timestamps":            "Timestamps",
		"change_ui_lang":        "Change bot language",
		"busy":                  "⚠️ <b>Whisper is busy</b>\n\nGPU/VRAM is loaded (e.g. Ollama in use). Try again when free. Use Retry below when ready.",
		"transcription_failed":  "❌ <b>Transcription failed</b>\n\nSomething went wrong on the server. Please try again later.",
		"duplicate_skipped":     "⏭️ Same audio already processed recently. Skipped. Send again after 1 minute to reprocess.",
		"retrying":              "🔄 Retrying...",
		"nothing_pending":       "No audio pending retry.",
		"audio_gone":            "Audio file no longer available.",
		"done":                  "✨ Complete!",
		"segments_failed":       "⚠️ %d of %d segments failed and were omitted.",
		"audio_not_found":       "❌ Audio file not found.",
		"segments_failed_short": "❌ Failed to process audio segments.",
	},
	"es": {
		"welcome_title":         "🎙️ <b>¡Bienvenido a InnerVoice!</b>",
		"audio_received":        "🎵 <b>Audio Recibido</b>",
		"duration":              "Duración",
		"language":              "Idioma",
		"mode":                  "Modo",
		"segments":              "Segmentos",
		"processing":            "⏳ Procesando...",
		"transcription_header":  "🎤 <b>Transcripción</b>",
		"original_language":     "Idioma original",
		"translation_header":    "🌐 <b>Traducción</b>",
		"english":               "Inglés",
		"processing_complete":   "✅ <b>Procesamiento Completo</b>",
		"time":                  "Tiempo",
		"help_title":            "📖 <b>Cómo Usar InnerVoice</b>",
		"about_title":           "🔐 <b>Transcripción de Voz con Privacidad</b>",
		"settings_title":        "⚙️ <b>Tus Configuraciones</b>",
		"configure":             "Configura tu experiencia InnerVoice:",
		"stats":                 "Estadísticas",
		"timestamps":            "Marcas de tiempo",
		"change_ui_lang":        "Cambiar idioma del bot",
		"busy":                  "⚠️ <b>Whisper está ocupado</b>\n\nGPU/VRAM cargada (ej. Ollama en uso). Intenta de nuevo cuando esté libre. Usa Reintentar abajo cuando estés listo.",
		"transcription_failed":  "❌ <b>Transcripción fallida</b>\n\nAlgo falló en el servidor. Intenta de nuevo más tarde.",
		"duplicate_skipped":     "⏭️ Mismo audio ya procesado recientemente. Omitido. Envía de nuevo tras 1 minuto para reprocesar.",
		"retrying":              "🔄 Reintentando...",
		"nothing_pending":       "No hay audio pendiente de reintento.",
		"audio_gone":            "Archivo de audio ya no disponible.",
		"done":                  "✨ ¡Completado!",
		"segments_failed":       "⚠️ %d de %d segmentos fallaron y fueron omitidos.",
		"audio_not_found":       "❌ Archivo de audio no encontrado.",
		"segments_failed_short": "❌ No se pudieron procesar los segmentos de audio.",
	},
}

// T returns the text for key in the given UI language.
func T(uiLang, key string) string {
	lang, ok := texts[uiLang]
	if !ok {
		lang = texts[DefaultLanguage]
	}
	if v, ok := lang[key]; ok {
		return v
	}
	return key
}
