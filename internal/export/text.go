package export

import (
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
)

// cyrillicLatin romanizes the Cyrillic letters found in Russian and
// Ukrainian file names. Core PDF fonts only cover cp1252.
var cyrillicLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'ґ': "g", 'д': "d", 'е': "e",
	'ё': "yo", 'є': "ye", 'ж': "zh", 'з': "z", 'и': "i", 'і': "i", 'ї': "yi",
	'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o", 'п': "p",
	'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "shch", 'ъ': "", 'ы': "y", 'ь': "", 'э': "e",
	'ю': "yu", 'я': "ya",
}

// transliterate replaces Cyrillic letters with Latin ones, keeping case.
func transliterate(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '№' {
			b.WriteString("No")
			continue
		}
		lower := unicode.ToLower(r)
		lat, ok := cyrillicLatin[lower]
		switch {
		case !ok:
			b.WriteRune(r)
		case r != lower && lat != "":
			b.WriteString(strings.ToUpper(lat[:1]) + lat[1:])
		default:
			b.WriteString(lat)
		}
	}
	return b.String()
}

// textEncoder returns a function converting UTF-8 text into the code page
// of the core fonts.
func textEncoder(pdf *fpdf.Fpdf) func(string) string {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	return func(s string) string {
		return tr(transliterate(s))
	}
}

// truncate encodes s and shortens it with an ellipsis until it fits width.
// Characters are dropped whole.
func truncate(pdf *fpdf.Fpdf, enc func(string) string, s string, width float64) string {
	if out := enc(s); pdf.GetStringWidth(out) <= width {
		return out
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(enc(string(runes))+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return enc(string(runes)) + "..."
}
