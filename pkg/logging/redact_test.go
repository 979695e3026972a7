package logging

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"owner@clinic.example": "o***@clinic.example",
		"a@b.jp":               "a***@b.jp",
		"invalid":              "***",
		"@nolocal.jp":          "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
