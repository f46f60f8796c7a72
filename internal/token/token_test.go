package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testCodec(t *testing.T, accessTTL, refreshTTL time.Duration) *Codec {
	t.Helper()
	codec, err := NewCodec(Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{},
		{AccessSecret: []byte("a"), AccessTTL: time.Minute, RefreshTTL: time.Minute},
		{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), AccessTTL: 0, RefreshTTL: time.Minute},
		{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), AccessTTL: time.Minute, RefreshTTL: -time.Minute},
	}
	for _, cfg := range cases {
		if _, err := NewCodec(cfg); err == nil {
			t.Fatalf("expected error for config %+v", cfg)
		}
	}
}

func TestAccessRoundTrip(t *testing.T) {
	codec := testCodec(t, time.Minute, time.Hour)

	tokenString, err := codec.EncodeAccess(42)
	if err != nil {
		t.Fatalf("encode access: %v", err)
	}

	claims, err := codec.DecodeAccess(tokenString)
	if err != nil {
		t.Fatalf("decode access: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("got user id %d, want 42", claims.UserID)
	}
}

func TestRefreshCarriesTokenVersion(t *testing.T) {
	codec := testCodec(t, time.Minute, time.Hour)

	tokenString, err := codec.EncodeRefresh(7, 3)
	if err != nil {
		t.Fatalf("encode refresh: %v", err)
	}

	claims, err := codec.DecodeRefresh(tokenString)
	if err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if claims.UserID != 7 || claims.TokenVersion != 3 {
		t.Fatalf("got claims %+v, want user 7 version 3", claims)
	}
}

func TestDecodeWithWrongSecretClassFails(t *testing.T) {
	codec := testCodec(t, time.Minute, time.Hour)

	accessToken, err := codec.EncodeAccess(1)
	if err != nil {
		t.Fatalf("encode access: %v", err)
	}

	// An access token must never verify against the refresh secret.
	if _, err := codec.DecodeRefresh(accessToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestDecodeExpired(t *testing.T) {
	codec := testCodec(t, -time.Minute, -time.Minute)

	tokenString, err := codec.EncodeRefresh(1, 0)
	if err != nil {
		t.Fatalf("encode refresh: %v", err)
	}

	if _, err := codec.DecodeRefresh(tokenString); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
}

func TestDecodeTampered(t *testing.T) {
	codec := testCodec(t, time.Minute, time.Hour)

	tokenString, err := codec.EncodeRefresh(1, 0)
	if err != nil {
		t.Fatalf("encode refresh: %v", err)
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", tokenString)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := codec.DecodeRefresh(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}

	if _, err := codec.DecodeRefresh("not-a-token"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}
