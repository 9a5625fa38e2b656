package session

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sess := testSession("sid-1", "u-1", "rt-1")
	sess.LastActivity = storeEpoch.Add(1500 * time.Millisecond)

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[0] != sessionFormatVersionV1 {
		t.Fatalf("unexpected version byte %d", data[0])
	}
	if bytes.Contains(data, []byte("rt-1")) {
		t.Fatal("encoded session must not contain the raw refresh token")
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "" {
		t.Fatalf("decoded session must not carry an ID, got %q", got.ID)
	}
	if got.UserID != sess.UserID || got.UserAgent != sess.UserAgent || got.IPAddress != sess.IPAddress {
		t.Fatalf("unexpected decoded session: %+v", got)
	}
	if got.RefreshHash != sess.RefreshHash {
		t.Fatal("refresh hash mismatch")
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) || !got.ExpiresAt.Equal(sess.ExpiresAt) || !got.LastActivity.Equal(sess.LastActivity) {
		t.Fatalf("timestamps mismatch: %+v", got)
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	sess := testSession("sid-1", strings.Repeat("u", 256), "rt")
	if _, err := Encode(sess); err == nil {
		t.Fatal("expected oversized userID to fail")
	}
	sess = testSession("sid-1", "u-1", "rt")
	sess.IPAddress = strings.Repeat("1", 256)
	if _, err := Encode(sess); err == nil {
		t.Fatal("expected oversized IP to fail")
	}
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	data, err := Encode(testSession("sid-1", "u-1", "rt-1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := [][]byte{
		nil,
		{0},
		{2},
		data[:10],
		data[:len(data)-1],
		append(append([]byte{}, data...), 0),
	}
	for i, c := range cases {
		if _, err := Decode(c); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("case %d: expected ErrInvalidSession, got %v", i, err)
		}
	}
}

// FuzzSessionDecode exercises the binary session decoder with arbitrary inputs.
// Goal: no panics, and anything that decodes re-encodes to the same bytes.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(testSession("sid-fuzz", "user1", "token"))
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:12])
	}
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{1, 255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(s)
		if err != nil {
			t.Fatalf("re-encode decoded session: %v", err)
		}
		if !bytes.Equal(again, data) {
			t.Fatalf("round trip mismatch")
		}
	})
}
