package cipher

import (
	"bytes"
	"testing"
)

func TestPkcs7RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("abc")},
		{"exact block", []byte("0123456789abcdef")},
		{"multi block", []byte("0123456789abcdef0123")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			padded := Pkcs7Pad(tt.data, 16)
			if len(padded)%16 != 0 {
				t.Fatalf("Pkcs7Pad(%q) length = %d, want multiple of 16", tt.data, len(padded))
			}
			got, err := Pkcs7Unpad(padded, 16)
			if err != nil {
				t.Fatalf("Pkcs7Unpad() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("Pkcs7Unpad(Pkcs7Pad(%q)) = %q, want %q", tt.data, got, tt.data)
			}
		})
	}
}

func TestPkcs7UnpadRejectsCorruptPadding(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not block multiple", []byte("abc")},
		{"zero pad byte", append(bytes.Repeat([]byte{'x'}, 15), 0)},
		{"pad byte too large", append(bytes.Repeat([]byte{'x'}, 15), 17)},
		{"inconsistent pad bytes", append(bytes.Repeat([]byte{'x'}, 14), 1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Pkcs7Unpad(tt.data, 16); err == nil {
				t.Errorf("Pkcs7Unpad(%v) expected error, got nil", tt.data)
			}
		})
	}
}

func TestAppxRoundTrip(t *testing.T) {
	tests := []string{
		"hello",
		"https://example.com/video/master.mpd",
		"",
		"dQw4w9WgXcQ",
	}

	for _, plain := range tests {
		enc := EncryptAppx(plain)
		if enc == "" {
			t.Fatalf("EncryptAppx(%q) = empty", plain)
		}
		if got := DecryptAppx(enc); got != plain {
			t.Errorf("DecryptAppx(EncryptAppx(%q)) = %q, want %q", plain, got, plain)
		}
	}
}

func TestDecryptAppxIgnoresSuffixAfterColon(t *testing.T) {
	enc := EncryptAppx("payload")
	if got := DecryptAppx(enc + ":trailing-garbage"); got != "payload" {
		t.Errorf("DecryptAppx with colon suffix = %q, want %q", got, "payload")
	}
}

func TestDecryptAppxFailureIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "!!not-base64!!"},
		{"wrong block size", "YWJj"},
		{"valid base64 garbage blocks", "MDEyMzQ1Njc4OWFiY2RlZg=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecryptAppx(tt.input); got != "" {
				t.Errorf("DecryptAppx(%q) = %q, want empty", tt.input, got)
			}
		})
	}
}

func TestUtkarshRoundTrip(t *testing.T) {
	plain := `{"course_id":"123","parent_id":0,"tile_id":"45"}`
	enc := EncryptUtkarsh(plain)
	if enc == "" {
		t.Fatal("EncryptUtkarsh returned empty")
	}
	if got := DecryptUtkarsh(enc); got != plain {
		t.Errorf("DecryptUtkarsh(EncryptUtkarsh()) = %q, want %q", got, plain)
	}
}

func TestNormalizeUtkarshPayload(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"filler token", "abcMDE2MTA4NjQxMDI3NDUxNQ==", "abc=="},
		{"colons", "abc:def:", "abc==def=="},
		{"both", "abcMDE2MTA4NjQxMDI3NDUxNQ==:x", "abc====x"},
		{"clean", "abcd", "abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeUtkarshPayload(tt.input); got != tt.want {
				t.Errorf("NormalizeUtkarshPayload(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPatchHeaderIsInvolution(t *testing.T) {
	orig := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	buf := make([]byte, len(orig))
	copy(buf, orig)

	PatchHeader(buf, "secret")
	if bytes.Equal(buf, orig) {
		t.Fatal("PatchHeader left the buffer unchanged")
	}
	if !bytes.Equal(buf[28:], orig[28:]) {
		t.Error("PatchHeader touched bytes past the header window")
	}

	PatchHeader(buf, "secret")
	if !bytes.Equal(buf, orig) {
		t.Errorf("double PatchHeader = %q, want original %q", buf, orig)
	}
}

func TestPatchHeaderShortBuffer(t *testing.T) {
	buf := []byte("short")
	PatchHeader(buf, "key")
	PatchHeader(buf, "key")
	if string(buf) != "short" {
		t.Errorf("double PatchHeader on short buffer = %q, want %q", buf, "short")
	}
}
