package bot

import (
	"fmt"

	"github.com/antoniostano/innervoice/internal/chat"
	"github.com/antoniostano/innervoice/internal/i18n"
	"github.com/antoniostano/innervoice/internal/prefs"
)

type languageInfo struct {
	Name  string
	Local string
	Flag  string
}

var supportedLanguages = map[string]languageInfo{
	"es": {Name: "Spanish", Local: "Español", Flag: "🇪🇸"},
	"en": {Name: "English", Local: "English", Flag: "🇬🇧"},
	"fr": {Name: "French", Local: "Français", Flag: "🇫🇷"},
	"nl": {Name: "Dutch", Local: "Nederlands", Flag: "🇳🇱"},
	"pt": {Name: "Portuguese", Local: "Português", Flag: "🇵🇹"},
	"it": {Name: "Italian", Local: "Italiano", Flag: "🇮🇹"},
	"ja": {Name: "Japanese", Local: "日本語", Flag: "🇯🇵"},
	"zh": {Name: "Chinese", Local: "中文", Flag: "🇨🇳"},
}

// Stable button order; map iteration would shuffle the keyboard.
var languageOrder = []string{"es", "en", "fr", "nl", "pt", "it", "ja", "zh"}

type modeInfo struct {
	Name string
	Icon string
}

var processingModes = map[prefs.Mode]modeInfo{
	prefs.ModeFast: {Name: "Fast Mode", Icon: "🚀"},
	prefs.ModeFull: {Name: "Full Mode", Icon: "📝"},
}

func languageKeyboard() *chat.InlineKeyboard {
	kb := &chat.InlineKeyboard{}
	var row []chat.Button
	for _, code := range languageOrder {
		info := supportedLanguages[code]
		row = append(row, chat.Button{
			Text:         fmt.Sprintf("%s %s", info.Flag, info.Local),
			CallbackData: "lang_" + code,
		})
		if len(row) == 2 {
			kb.Rows = append(kb.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb.Rows = append(kb.Rows, row)
	}
	return kb
}

func modeKeyboard() *chat.InlineKeyboard {
	return &chat.InlineKeyboard{Rows: [][]chat.Button{
		{{Text: "🚀 Fast Mode", CallbackData: "mode_fast"}},
		{{Text: "📝 Full Mode", CallbackData: "mode_full"}},
	}}
}

func uiLanguageKeyboard() *chat.InlineKeyboard {
	return &chat.InlineKeyboard{Rows: [][]chat.Button{
		{{Text: "🇪🇸 Español", CallbackData: "ui_lang_es"}},
		{{Text: "🇬🇧 English", CallbackData: "ui_lang_en"}},
	}}
}

func settingsKeyboard(p prefs.Preferences) *chat.InlineKeyboard {
	lang := supportedLanguages[p.Language]
	mode := processingModes[p.Mode]
	uiLabel := "🇪🇸 ES"
	if p.UILanguage == "en" {
		uiLabel = "🇬🇧 EN"
	}
	return &chat.InlineKeyboard{Rows: [][]chat.Button{
		{{Text: fmt.Sprintf("Language: %s %s", lang.Flag, lang.Name), CallbackData: "change_lang"}},
		{{Text: fmt.Sprintf("Mode: %s %s", mode.Icon, mode.Name), CallbackData: "change_mode"}},
		{{Text: "UI: " + uiLabel, CallbackData: "change_ui_lang"}},
		{{Text: i18n.T(p.UILanguage, "stats") + ": " + checkmark(p.ShowStats), CallbackData: "toggle_stats"}},
		{{Text: i18n.T(p.UILanguage, "timestamps") + ": " + checkmark(p.Timestamps), CallbackData: "toggle_timestamps"}},
	}}
}

func checkmark(on bool) string {
	if on {
		return "✅"
	}
	return "❌"
}
