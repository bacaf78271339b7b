//go:build !cgo

package analysis

import "slices"

// Analyzer stands in for the tree-sitter analyzer when cgo is disabled.
// Every analysis fails with ErrUnavailable.
type Analyzer struct {
	language string
}

// NewAnalyzer validates language and creates an Analyzer for it.
func NewAnalyzer(language string) (*Analyzer, error) {
	language = normalizeLanguage(language)
	if !slices.Contains(SupportedLanguages(), language) {
		return nil, unsupportedLanguage(language)
	}
	return &Analyzer{language: language}, nil
}

// Language returns the analyzer's language.
func (a *Analyzer) Language() string {
	return a.language
}

func (a *Analyzer) Print(src []byte, typeName string) ([]byte, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) Tree(src []byte) (*Block, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) Stub(src []byte) ([]byte, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) Check(original, completed []byte) (*CheckResult, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) Weave(text, nettle []byte, level int) ([]byte, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) Usages(outer, inner []byte) (*UsagesResult, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) TypeCheck(src []byte) (int, error) {
	return 0, ErrUnavailable
}

func (a *Analyzer) ObjectInfo(src []byte) (ObjectInfoMap, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) TypedefGen(src []byte, typeName string) ([]byte, error) {
	return nil, ErrUnavailable
}
