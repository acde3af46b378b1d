package types

import (
	"errors"
	"sort"
)

// ErrInvalidLanguage is returned for language ids outside the allow-list.
var ErrInvalidLanguage = errors.New("invalid language")

// LanguageID is the remote engine's numeric language identifier.
type LanguageID int

// Allow-listed languages.
const (
	LanguageC          LanguageID = 50
	LanguageCPP        LanguageID = 54
	LanguageJava       LanguageID = 62
	LanguageJavaScript LanguageID = 63
	LanguagePython     LanguageID = 71
)

// Language represents a supported programming language.
type Language struct {
	// ID is the engine language identifier.
	ID LanguageID `json:"id"`

	// Name is the human-readable name of the language.
	Name string `json:"name"`

	// Extension is the default file extension for source files.
	Extension string `json:"extension"`
}

var languages = map[LanguageID]Language{
	LanguageC:          {ID: LanguageC, Name: "C", Extension: "c"},
	LanguageCPP:        {ID: LanguageCPP, Name: "C++", Extension: "cpp"},
	LanguageJava:       {ID: LanguageJava, Name: "Java", Extension: "java"},
	LanguageJavaScript: {ID: LanguageJavaScript, Name: "JavaScript", Extension: "js"},
	LanguagePython:     {ID: LanguagePython, Name: "Python", Extension: "py"},
}

// LookupLanguage returns the allow-listed language for id.
func LookupLanguage(id LanguageID) (Language, error) {
	lang, ok := languages[id]
	if !ok {
		return Language{}, ErrInvalidLanguage
	}
	return lang, nil
}

// Valid reports whether the id is allow-listed.
func (id LanguageID) Valid() bool {
	_, ok := languages[id]
	return ok
}

// Languages lists the allow-list ordered by id.
func Languages() []Language {
	out := make([]Language, 0, len(languages))
	for _, lang := range languages {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
