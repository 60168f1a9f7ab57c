package pcapsniff

import "testing"

func TestIsHTTPRequestRecognizesCommonMethods(t *testing.T) {
	cases := []struct {
		payload string
		want    bool
	}{
		{"GET /index.html HTTP/1.1\r\n", true},
		{"POST /api/widgets HTTP/1.1\r\n", true},
		{"HTTP/1.1 200 OK\r\n", false},
		{"\x16\x03\x01\x00\xa5", false}, // TLS client hello, not HTTP
		{"", false},
	}
	for _, c := range cases {
		if got := isHTTPRequest([]byte(c.payload)); got != c.want {
			t.Errorf("isHTTPRequest(%q) = %v, want %v", c.payload, got, c.want)
		}
	}
}

func TestSeqLessOrEqualHandlesWraparound(t *testing.T) {
	if !seqLessOrEqual(100, 200) {
		t.Errorf("100 should be <= 200")
	}
	if seqLessOrEqual(200, 100) {
		t.Errorf("200 should not be <= 100")
	}
	// Sequence number wrapped around past the 32-bit boundary: a small
	// value just after wraparound is still "ahead of" a large pre-wrap one.
	const max = ^uint32(0)
	if seqLessOrEqual(5, max-2) {
		t.Errorf("5 (post-wrap) should be considered ahead of %d (pre-wrap)", max-2)
	}
}

func TestItoaMatchesDecimalFormatting(t *testing.T) {
	cases := map[int]string{0: "0", 80: "80", 65535: "65535"}
	for in, want := range cases {
		if got := itoa(in); got != want {
			t.Errorf("itoa(%d) = %q, want %q", in, got, want)
		}
	}
}
