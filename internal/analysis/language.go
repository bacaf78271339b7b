package analysis

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Supported languages
const (
	LanguageTypeScript = "typescript"
	LanguageTSX        = "tsx"
	LanguagePython     = "python"
)

// DetectLanguage determines the analysis language from a file extension.
// JavaScript sources are parsed with the TypeScript grammars.
func DetectLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts", ".js", ".mjs", ".cjs":
		return LanguageTypeScript
	case ".tsx", ".jsx":
		return LanguageTSX
	case ".py", ".pyi", ".pyw":
		return LanguagePython
	default:
		return ""
	}
}

// SupportedLanguages returns the languages an Analyzer accepts.
func SupportedLanguages() []string {
	return []string{LanguageTypeScript, LanguageTSX, LanguagePython}
}

func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	switch language {
	case "ts", "javascript", "js":
		return LanguageTypeScript
	case "jsx":
		return LanguageTSX
	case "py":
		return LanguagePython
	}
	return language
}

func unsupportedLanguage(language string) error {
	return fmt.Errorf("language not supported for analysis: %s (supported: %s)",
		language, strings.Join(SupportedLanguages(), ", "))
}
