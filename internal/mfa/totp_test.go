package mfa

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
	"time"
)

// base32 of the RFC 6238 SHA1 seed "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTP_CodeRFC6238Vectors(t *testing.T) {
	e := NewTOTP(false)
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}
	for _, tc := range cases {
		got, err := e.Code(rfcSecret, time.Unix(tc.ts, 0))
		if err != nil {
			t.Fatalf("Code t=%d: %v", tc.ts, err)
		}
		if got != tc.code {
			t.Errorf("Code t=%d = %q, want %q", tc.ts, got, tc.code)
		}
	}
}

func TestTOTP_VerifyOwnCode(t *testing.T) {
	e := NewTOTP(true)
	for i := 0; i < 20; i++ {
		secret, err := e.Provision()
		if err != nil {
			t.Fatalf("Provision: %v", err)
		}
		for _, ts := range []int64{0, 29, 30, 59, 1700000000, 1700000029, 4102444800} {
			now := time.Unix(ts, 0)
			code, err := e.Code(secret, now)
			if err != nil {
				t.Fatalf("Code: %v", err)
			}
			if !e.Verify(secret, code, now) {
				t.Fatalf("Verify(Code(secret, t), t) = false at t=%d", ts)
			}
		}
	}
}

func TestTOTP_VerifyRejectsOtherSecret(t *testing.T) {
	e := NewTOTP(true)
	now := time.Unix(1700000000, 0)
	a, _ := e.Provision()
	b, _ := e.Provision()
	code, err := e.Code(a, now)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	codeB, _ := e.Code(b, now)
	prevB, _ := e.Code(b, now.Add(-Period))
	if code == codeB || code == prevB {
		t.Skip("random secrets produced colliding codes")
	}
	if e.Verify(b, code, now) {
		t.Error("code from a different secret was accepted")
	}
}

func TestTOTP_SkewWindow(t *testing.T) {
	now := time.Unix(1111111109, 0)
	// Codes for steps -2, -1, 0 and +1 around now.
	const (
		twoBack  = "150727"
		oneBack  = "731029"
		current  = "081804"
		oneAhead = "050471"
	)
	withSkew := NewTOTP(true)
	if !withSkew.Verify(rfcSecret, current, now) {
		t.Error("current step rejected")
	}
	if !withSkew.Verify(rfcSecret, oneBack, now) {
		t.Error("previous step rejected with skew enabled")
	}
	if withSkew.Verify(rfcSecret, twoBack, now) {
		t.Error("two steps back accepted")
	}
	if withSkew.Verify(rfcSecret, oneAhead, now) {
		t.Error("next step accepted")
	}

	strict := NewTOTP(false)
	if strict.Verify(rfcSecret, oneBack, now) {
		t.Error("previous step accepted with skew disabled")
	}
}

func TestTOTP_VerifyMalformed(t *testing.T) {
	e := NewTOTP(true)
	now := time.Unix(1111111109, 0)
	for _, candidate := range []string{"", "08180", "0818045", "08a804", "-81804"} {
		if e.Verify(rfcSecret, candidate, now) {
			t.Errorf("Verify(%q) = true", candidate)
		}
	}
	if !e.Verify(rfcSecret, " 081804 ", now) {
		t.Error("surrounding whitespace should be trimmed")
	}
	if e.Verify("not base32!", "081804", now) {
		t.Error("invalid secret accepted")
	}
	if e.Verify("", "081804", now) {
		t.Error("empty secret accepted")
	}
}

func TestGenerateSecret(t *testing.T) {
	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if strings.Contains(s, "=") {
		t.Errorf("secret %q should be unpadded", s)
	}
	raw, err := DecodeSecret(s)
	if err != nil {
		t.Fatalf("DecodeSecret: %v", err)
	}
	if len(raw) != SecretBytes {
		t.Errorf("secret length = %d bytes, want %d", len(raw), SecretBytes)
	}
	if _, err := generateSecret(bytes.NewReader(nil)); err == nil {
		t.Error("empty random source should fail")
	}
}

func TestDecodeSecret_Lenient(t *testing.T) {
	raw, err := DecodeSecret("gezd gnbv gy3t qojq gezd gnbv gy3t qojq")
	if err != nil {
		t.Fatalf("DecodeSecret: %v", err)
	}
	if string(raw) != "12345678901234567890" {
		t.Errorf("decoded = %q", raw)
	}
	if _, err := DecodeSecret("   "); err != ErrInvalidSecret {
		t.Errorf("blank secret: want ErrInvalidSecret, got %v", err)
	}
}

func TestTOTP_URI(t *testing.T) {
	e := NewTOTP(true)
	uri := e.URI("Back Office", "ana@example.com", rfcSecret)
	u, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parse %q: %v", uri, err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Errorf("scheme/host = %q/%q", u.Scheme, u.Host)
	}
	if u.Path != "/Back Office:ana@example.com" {
		t.Errorf("label = %q", u.Path)
	}
	if !strings.Contains(uri, "Back%20Office") {
		t.Errorf("label should be percent-encoded: %q", uri)
	}
	q := u.Query()
	want := map[string]string{
		"secret":    rfcSecret,
		"issuer":    "Back Office",
		"algorithm": "SHA1",
		"digits":    "6",
		"period":    "30",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}
