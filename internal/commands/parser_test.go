package commands

import "testing"

func TestParseReportTagVariants(t *testing.T) {
	cases := []struct {
		name string
		in   string
		text string
	}{
		{"plain", "#osmnote hueco en la via", "hueco en la via"},
		{"dash", "#osm-note hueco en la via", "hueco en la via"},
		{"underscore", "#osm_note hueco en la via", "hueco en la via"},
		{"uppercase", "#OSMNOTE hueco en la via", "hueco en la via"},
		{"mixed case", "#OsM-NoTe hueco", "hueco"},
		{"tag at end", "hueco en la via #osmnote", "hueco en la via"},
		{"tag in middle", "hueco #osmnote en la via", "hueco  en la via"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := Parse(tc.in)
			if cmd.Kind != KindReport {
				t.Fatalf("expected KindReport, got %v", cmd.Kind)
			}
			if cmd.Text != tc.text {
				t.Errorf("expected text %q, got %q", tc.text, cmd.Text)
			}
		})
	}
}

func TestParseReportTagWordBoundary(t *testing.T) {
	cmd := Parse("#osmnotetest algo")
	if cmd.Kind != KindNone {
		t.Errorf("#osmnotetest must not match the report tag, got kind %v", cmd.Kind)
	}
}

func TestParseReportEmptyRemainder(t *testing.T) {
	cmd := Parse("#osmnote")
	if cmd.Kind != KindReport {
		t.Fatalf("bare tag must still classify as report, got %v", cmd.Kind)
	}
	if cmd.Text != "" {
		t.Errorf("expected empty remainder, got %q", cmd.Text)
	}
}

func TestParseInfoCommands(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
	}{
		{"#osmhelp", KindHelp},
		{"#OSMHELP", KindHelp},
		{"#osmstatus", KindStatus},
		{"#osmqueue", KindQueue},
		{"#osmnodes", KindNodes},
		{"#osmcount", KindCount},
		{"ordinary chatter", KindNone},
		{"", KindNone},
		{"   ", KindNone},
	}
	for _, tc := range cases {
		if got := Parse(tc.in).Kind; got != tc.kind {
			t.Errorf("Parse(%q).Kind = %v, expected %v", tc.in, got, tc.kind)
		}
	}
}

func TestParseListLimit(t *testing.T) {
	cases := []struct {
		in    string
		limit int
	}{
		{"#osmlist", ListDefault},
		{"#osmlist 3", 3},
		{"#osmlist 0", ListMin},
		{"#osmlist -4", ListMin},
		{"#osmlist 99", ListMax},
		{"#osmlist abc", ListDefault},
	}
	for _, tc := range cases {
		cmd := Parse(tc.in)
		if cmd.Kind != KindList {
			t.Fatalf("Parse(%q) kind = %v, expected KindList", tc.in, cmd.Kind)
		}
		if cmd.Limit != tc.limit {
			t.Errorf("Parse(%q) limit = %d, expected %d", tc.in, cmd.Limit, tc.limit)
		}
	}
}

func TestParseLang(t *testing.T) {
	cmd := Parse("#osmlang EN")
	if cmd.Kind != KindLang {
		t.Fatalf("expected KindLang, got %v", cmd.Kind)
	}
	if cmd.Language != "en" {
		t.Errorf("expected lowercased language, got %q", cmd.Language)
	}

	if got := Parse("#osmlang").Language; got != "" {
		t.Errorf("bare #osmlang must carry no language, got %q", got)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"  hueco   en\tla\nvia  ", "hueco en la via"},
		{"ya normal", "ya normal"},
		{"", ""},
		{"   ", ""},
		{"Ñandú  ACENTOS", "Ñandú ACENTOS"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.out {
			t.Errorf("Normalize(%q) = %q, expected %q", tc.in, got, tc.out)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := "  a  b\t c \n"
	once := Normalize(in)
	if twice := Normalize(once); twice != once {
		t.Errorf("Normalize not idempotent: %q vs %q", once, twice)
	}
}
