package assistant

// Language is a supported response language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DefaultLanguageCode is the language used until the user picks one.
const DefaultLanguageCode = "zh-TW"

// SupportedLanguages is the fixed language catalogue.
var SupportedLanguages = []Language{
	{Code: "zh-TW", Name: "Traditional Chinese (Taiwan)"},
	{Code: "zh-CN", Name: "Simplified Chinese"},
	{Code: "zh-HK", Name: "Traditional Chinese (Hong Kong)"},
	{Code: "en-US", Name: "English (US)"},
	{Code: "en-AU", Name: "English (Australia)"},
	{Code: "vi", Name: "Vietnamese"},
	{Code: "ru", Name: "Russian"},
	{Code: "fil", Name: "Filipino"},
	{Code: "th", Name: "Thai"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
}

// LanguageByCode looks up a supported language, falling back to the
// default when the code is unknown.
func LanguageByCode(code string) Language {
	for _, lang := range SupportedLanguages {
		if lang.Code == code {
			return lang
		}
	}
	return SupportedLanguages[0]
}
