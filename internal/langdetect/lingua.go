package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Language is a detected language as an ISO 639-1 code and an English name.
type Language struct {
	Code string
	Name string
}

var supported = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.Catalan,
	lingua.Portuguese,
	lingua.French,
	lingua.Italian,
	lingua.German,
	lingua.Dutch,
}

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detect guesses the language of text. Short or letterless samples are not
// classified.
func Detect(text string) (Language, bool) {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return Language{}, false
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return Language{}, false
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return Language{}, false
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return Language{}, false
	}
	return Language{Code: code, Name: language.String()}, true
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(supported...).
			Build()
	})
	return detector
}
