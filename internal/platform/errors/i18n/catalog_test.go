package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
}

func TestGetCatalogMatchesRegionalVariants(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: "en-US"},
		{in: "pt-BR", want: "pt-BR"},
		{in: "pt", want: "pt-BR"},
		{in: "en-GB", want: "en-US"},
		{in: "ja", want: "en-US"},
	}
	for _, tc := range cases {
		if got := GetCatalog(tc.in).Locale(); got != tc.want {
			t.Fatalf("GetCatalog(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuiltInCatalogsShareCodes(t *testing.T) {
	for code := range enUSMessages {
		if _, ok := ptBRMessages[code]; !ok {
			t.Fatalf("pt-BR missing %s", code)
		}
	}
}

func TestFormatRendersMetadata(t *testing.T) {
	got := GetCatalog("en-US").Format(CodeTargetIneligible, map[string]string{"TargetID": "p-7"})
	if got != "You cannot vote for p-7 in this round." {
		t.Fatalf("format = %q", got)
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello <no value>" {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}
