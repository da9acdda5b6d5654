package langdetect

import "testing"

func TestDetectCommonLanguages(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"en": "The Django security team released a patch for a critical vulnerability in the admin site.",
		"es": "El equipo de seguridad de Django ha publicado un parche para una vulnerabilidad crítica.",
	}
	for want, text := range cases {
		got, ok := Detect(text)
		if !ok {
			t.Fatalf("expected a language for %q", text)
		}
		if got.Code != want {
			t.Fatalf("expected %s, got %+v", want, got)
		}
		if got.Name == "" {
			t.Fatalf("expected language name for %s", want)
		}
	}
}

func TestDetectRejectsShortSamples(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "v1.2", "AI 4"} {
		if got, ok := Detect(text); ok {
			t.Fatalf("expected no detection for %q, got %+v", text, got)
		}
	}
}
