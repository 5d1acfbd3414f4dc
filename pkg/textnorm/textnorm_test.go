package textnorm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voxclone/pkg/textnorm"
)

func TestClean(t *testing.T) {
	t.Parallel()

	n := textnorm.New(textnorm.Spanish)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Hola mundo.", "Hola mundo."},
		{"title", "El Sr. Pérez llegó.", "El señor Pérez llegó."},
		{"country", "Viajó a EE.UU. ayer", "Viajó a Estados Unidos ayer"},
		{"phonetic", "Vivo en Ñuñoa", "Vivo en Niuñoa"},
		{"full hour", "Llega 8:00", "Llega las ocho"},
		{"hour and minutes", "A las 14:30 horas", "A las las catorce treinta horas"},
		{"leading zero minutes", "9:05", "las nueve cinco"},
		{"number", "Tengo 123 libros", "Tengo ciento veintitrés libros"},
		{"year", "En 2024.", "En dos mil veinticuatro."},
		{"too large stays literal", "Son 1000000000 granos", "Son 1000000000 granos"},
		{"overflowing digits stay literal", "x 99999999999999999999999 y", "x 99999999999999999999999 y"},
		{"percent", "Un 50% más", "Un cincuenta por ciento más"},
		{"currency", "Cuesta 20$ hoy", "Cuesta veinte dólares hoy"},
		{"ellipsis", "Espera... ya", "Espera, ya"},
		{"brackets", "Hola (amigo)", "Hola, amigo,"},
		{"quotes dropped", `Dijo "sí"`, "Dijo sí"},
		{"space before punctuation", "Hola , que tal !", "Hola, que tal!"},
		{"comma runs", "uno, , , dos", "uno, dos"},
		{"whitespace collapse", "  a \t\n b  ", "a b"},
		{"dash", "norte - sur", "norte, sur"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := n.Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestClean_RulesApplyInOrder(t *testing.T) {
	t.Parallel()

	// The second rule only matches what the first one produced.
	n := textnorm.New(textnorm.Language{Name: "test"}, textnorm.WithRules(
		textnorm.Rule{From: "a", To: "b"},
		textnorm.Rule{From: "bb", To: "c"},
	))
	if got := n.Clean("ab"); got != "c" {
		t.Errorf("Clean(ab) = %q, want %q", got, "c")
	}
}

func TestClean_DecomposedAccentsMatchRules(t *testing.T) {
	t.Parallel()

	n := textnorm.New(textnorm.Spanish)
	// "N" followed by a combining tilde.
	in := "N\u0303uble"
	if got := n.Clean(in); got != "Niuble" {
		t.Errorf("Clean(%q) = %q, want %q", in, got, "Niuble")
	}
}

func TestSpellSpanish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int64
		want string
	}{
		{0, "cero"},
		{1, "uno"},
		{15, "quince"},
		{16, "dieciséis"},
		{21, "veintiuno"},
		{22, "veintidós"},
		{31, "treinta y uno"},
		{99, "noventa y nueve"},
		{100, "cien"},
		{101, "ciento uno"},
		{115, "ciento quince"},
		{200, "doscientos"},
		{555, "quinientos cincuenta y cinco"},
		{1000, "mil"},
		{1001, "mil uno"},
		{2024, "dos mil veinticuatro"},
		{21000, "veintiún mil"},
		{31000, "treinta y un mil"},
		{100000, "cien mil"},
		{101000, "ciento un mil"},
		{1000000, "un millón"},
		{2500000, "dos millones quinientos mil"},
		{21000000, "veintiún millones"},
		{999999999, "novecientos noventa y nueve millones novecientos noventa y nueve mil novecientos noventa y nueve"},
	}
	for _, tc := range tests {
		got, err := textnorm.SpellSpanish(tc.n)
		if err != nil {
			t.Errorf("SpellSpanish(%d): unexpected error: %v", tc.n, err)
			continue
		}
		if got != tc.want {
			t.Errorf("SpellSpanish(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestSpellSpanish_OutOfRange(t *testing.T) {
	t.Parallel()

	for _, n := range []int64{-1, 1_000_000_000} {
		if _, err := textnorm.SpellSpanish(n); !errors.Is(err, textnorm.ErrOutOfRange) {
			t.Errorf("SpellSpanish(%d) error = %v, want ErrOutOfRange", n, err)
		}
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want []string
	}{
		{"empty", "", 10, nil},
		{"fits", "Hola. ¿Cómo estás?", 140, []string{"Hola. ¿Cómo estás?"}},
		{
			"sentences",
			"Uno dos. Tres cuatro. Cinco seis.",
			20,
			[]string{"Uno dos.", "Tres cuatro.", "Cinco seis."},
		},
		{
			"packs sentences greedily",
			"Uno. Dos. Tres cuatro cinco seis.",
			20,
			[]string{"Uno. Dos.", "Tres cuatro cinco seis."},
		},
		{
			"long sentence splits on commas",
			"primero segundo, tercero cuarto, quinto sexto",
			20,
			[]string{"primero segundo", "tercero cuarto", "quinto sexto"},
		},
		{
			"irreducible token",
			strings.Repeat("a", 30),
			10,
			[]string{strings.Repeat("a", 30)},
		},
		{
			"whitespace only",
			strings.Repeat(" ", 30),
			10,
			[]string{strings.Repeat(" ", 30)},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := textnorm.Split(tc.in, tc.max)
			if len(got) != len(tc.want) {
				t.Fatalf("Split(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	// 10 runes, 20 bytes.
	s := strings.Repeat("ñ", 10)
	got := textnorm.Split(s, 10)
	if len(got) != 1 || got[0] != s {
		t.Errorf("Split(%q, 10) = %q, want the input unchanged", s, got)
	}
}
