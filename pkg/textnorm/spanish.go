package textnorm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfRange is returned by [SpellSpanish] for numbers it cannot spell.
var ErrOutOfRange = errors.New("textnorm: number out of range")

// Spanish is the rule set for Spanish (es) text.
var Spanish = Language{
	Name: "es",
	// A leading Ñ is dropped by the model; approximate it phonetically.
	PhoneticFixes: []Rule{
		{"Ñuble", "Niuble"},
		{"Ñuñoa", "Niuñoa"},
		{"Ñoño", "Nioño"},
		{"Ñoquis", "Nioquis"},
		{"Ñandú", "Niandú"},
		{"Ñato", "Niato"},
	},
	Replacements: []Rule{
		// titles
		{"Sr.", "señor"},
		{"Sra.", "señora"},
		{"Srta.", "señorita"},
		{"Dr.", "doctor"},
		{"Dra.", "doctora"},
		{"Ing.", "ingeniero"},
		{"Lic.", "licenciado"},
		{"Prof.", "profesor"},

		// places
		{"EE.UU.", "Estados Unidos"},
		{"UU.", "Unidos"},

		{"Ud.", "usted"},
		{"Uds.", "ustedes"},
		{"etc.", "etcétera"},
		{"vs.", "versus"},
		{"aprox.", "aproximadamente"},
		{"tel.", "teléfono"},
		{"núm.", "número"},
		{"pág.", "página"},

		// symbols
		{"%", " por ciento"},
		{"$", " dólares "},
		{"€", " euros "},
		{"£", " libras "},
		{"&", " y "},
		{"@", " arroba "},
		{"#", " número "},

		// punctuation the model stumbles over
		{"...", ", "},
		{"..", ", "},
		{" - ", ", "},
		{" – ", ", "},
		{" — ", ", "},
		{`"`, ""},
		{"'", ""},
		{"(", ", "},
		{")", ", "},
		{"[", ", "},
		{"]", ", "},
		{"{", ", "},
		{"}", ", "},
	},
	MaxNumber:   999_999_999,
	SpellNumber: SpellSpanish,
	TimePhrase: func(hour, minute string) string {
		if minute == "" {
			return "las " + hour
		}
		return "las " + hour + " " + minute
	},
}

var (
	esUnits = [...]string{
		"cero", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve",
		"diez", "once", "doce", "trece", "catorce", "quince", "dieciséis", "diecisiete", "dieciocho", "diecinueve",
		"veinte", "veintiuno", "veintidós", "veintitrés", "veinticuatro", "veinticinco", "veintiséis", "veintisiete", "veintiocho", "veintinueve",
	}
	esTens = [...]string{
		3: "treinta", 4: "cuarenta", 5: "cincuenta", 6: "sesenta",
		7: "setenta", 8: "ochenta", 9: "noventa",
	}
	esHundreds = [...]string{
		1: "ciento", 2: "doscientos", 3: "trescientos", 4: "cuatrocientos", 5: "quinientos",
		6: "seiscientos", 7: "setecientos", 8: "ochocientos", 9: "novecientos",
	}
)

// SpellSpanish returns the Spanish cardinal for n in [0, 999999999].
//
//	SpellSpanish(123)   // "ciento veintitrés"
//	SpellSpanish(2024)  // "dos mil veinticuatro"
//	SpellSpanish(21000) // "veintiún mil"
func SpellSpanish(n int64) (string, error) {
	if n < 0 || n > 999_999_999 {
		return "", fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	if n == 0 {
		return esUnits[0], nil
	}

	millions := int(n / 1_000_000)
	thousands := int(n / 1000 % 1000)
	rest := int(n % 1000)

	var parts []string
	switch {
	case millions == 1:
		parts = append(parts, "un millón")
	case millions > 1:
		parts = append(parts, spellBelow1000(millions, true)+" millones")
	}
	switch {
	case thousands == 1:
		parts = append(parts, "mil")
	case thousands > 1:
		parts = append(parts, spellBelow1000(thousands, true)+" mil")
	}
	if rest > 0 {
		parts = append(parts, spellBelow1000(rest, false))
	}
	return strings.Join(parts, " "), nil
}

// spellBelow1000 spells 1..999. With apocope set, a trailing "uno" is
// shortened the way it is before "mil" and "millones".
func spellBelow1000(n int, apocope bool) string {
	if n == 100 {
		return "cien"
	}
	var parts []string
	if h := n / 100; h > 0 {
		parts = append(parts, esHundreds[h])
	}
	r := n % 100
	switch {
	case r == 0:
	case r < 30:
		w := esUnits[r]
		if apocope {
			switch r {
			case 1:
				w = "un"
			case 21:
				w = "veintiún"
			}
		}
		parts = append(parts, w)
	default:
		w := esTens[r/10]
		if u := r % 10; u > 0 {
			unit := esUnits[u]
			if apocope && u == 1 {
				unit = "un"
			}
			w += " y " + unit
		}
		parts = append(parts, w)
	}
	return strings.Join(parts, " ")
}
