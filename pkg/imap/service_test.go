package imap

import "testing"

func TestWatermarkRoundTrip(t *testing.T) {
	w := formatWatermark(12345, 678)
	if w != "12345:678" {
		t.Errorf("formatWatermark = %q", w)
	}
	v, u, ok := parseWatermark(w)
	if !ok || v != 12345 || u != 678 {
		t.Errorf("parseWatermark = %d, %d, %v", v, u, ok)
	}
}

func TestParseWatermarkRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "123", "a:b", "1:2:3x", "-1:5", "99999999999999:1"} {
		if _, _, ok := parseWatermark(bad); ok {
			t.Errorf("parseWatermark(%q) accepted malformed input", bad)
		}
	}
}

func TestStripTags(t *testing.T) {
	got := stripTags("<div><p>Hello   <b>world</b></p></div>")
	if got != "Hello world" {
		t.Errorf("stripTags = %q", got)
	}
}
