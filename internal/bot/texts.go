package bot

import (
	"fmt"

	"github.com/antoniostano/innervoice/internal/i18n"
	"github.com/antoniostano/innervoice/internal/prefs"
)

func welcomeText(ui string) string {
	if ui == "en" {
		return i18n.T(ui, "welcome_title") + "\n\n" +
			"Send me a voice message and I'll transcribe and translate it locally. Nothing leaves your server.\n\n" +
			"/settings - Configure language & mode\n" +
			"/lang - Source language\n" +
			"/mode - Processing mode\n" +
			"/help - Learn more\n" +
			"/about - Technical details\n\n" +
			"Change UI language in /settings"
	}
	return i18n.T(ui, "welcome_title") + "\n\n" +
		"Envíame un mensaje de voz y lo transcribo y traduzco localmente. Nada sale de tu servidor.\n\n" +
		"/settings - Configurar idioma y modo\n" +
		"/lang - Idioma de origen\n" +
		"/mode - Modo de procesamiento\n" +
		"/help - Ayuda\n" +
		"/about - Detalles técnicos\n\n" +
		"Cambia idioma de interfaz en /settings"
}

func helpText(ui string) string {
	if ui == "en" {
		return i18n.T(ui, "help_title") + "\n\n" +
			"1. Send or forward a voice message.\n" +
			"2. Pick the source language with /lang so the model is primed for it.\n" +
			"3. Full mode returns the original transcription plus an English translation; fast mode returns the translation only.\n" +
			"4. Long audio is split into 30s pieces and processed in order.\n\n" +
			"If the GPU is busy you get a Retry button instead of a half-finished result."
	}
	return i18n.T(ui, "help_title") + "\n\n" +
		"1. Envía o reenvía un mensaje de voz.\n" +
		"2. Elige el idioma de origen con /lang para preparar el modelo.\n" +
		"3. El modo completo devuelve la transcripción original más la traducción al inglés; el modo rápido solo la traducción.\n" +
		"4. El audio largo se divide en piezas de 30s y se procesa en orden.\n\n" +
		"Si la GPU está ocupada recibes un botón Reintentar en lugar de un resultado a medias."
}

func aboutText(ui string) string {
	if ui == "en" {
		return i18n.T(ui, "about_title") + "\n\n" +
			"Everything runs on self-hosted hardware: Whisper for speech recognition, ffmpeg for audio preparation. " +
			"Audio files are deleted right after processing and no transcript is stored."
	}
	return i18n.T(ui, "about_title") + "\n\n" +
		"Todo corre en hardware propio: Whisper para reconocimiento de voz, ffmpeg para preparar el audio. " +
		"Los archivos de audio se borran justo después de procesarse y no se guarda ninguna transcripción."
}

func settingsText(p prefs.Preferences) string {
	ui := p.UILanguage
	return i18n.T(ui, "settings_title") + "\n\n" + i18n.T(ui, "configure")
}

func langPromptText(p prefs.Preferences) string {
	info := supportedLanguages[p.Language]
	if p.UILanguage == "en" {
		return fmt.Sprintf("🌐 <b>Language Optimization</b>\n\nCurrent: %s %s\n\n👇 Select:", info.Flag, info.Name)
	}
	return fmt.Sprintf("🌐 <b>Optimización de Idioma</b>\n\nActual: %s %s\n\n👇 Selecciona:", info.Flag, info.Name)
}

func modePromptText(p prefs.Preferences) string {
	info := processingModes[p.Mode]
	if p.UILanguage == "en" {
		return fmt.Sprintf("⚡ <b>Processing Mode</b>\n\nCurrent: %s %s\n\n👇 Select:", info.Icon, info.Name)
	}
	return fmt.Sprintf("⚡ <b>Modo de Procesamiento</b>\n\nActual: %s %s\n\n👇 Selecciona:", info.Icon, info.Name)
}
