package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const sessionFormatVersionV1 = 1

// Encode serializes s without its ID, which is carried by the storage key.
//
// Layout (v1, big endian): version byte, userID (u8 length), refresh hash
// (32 bytes), user agent (u16 length), IP address (u8 length), then
// CreatedAt, ExpiresAt and LastActivity as int64 Unix nanoseconds.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionV1)

	if len(s.UserID) > math.MaxUint8 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	buf.Write(s.RefreshHash[:])

	if len(s.UserAgent) > math.MaxUint16 {
		return nil, errors.New("user agent too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.UserAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(s.UserAgent)

	if len(s.IPAddress) > math.MaxUint8 {
		return nil, errors.New("ip address too long")
	}
	buf.WriteByte(byte(len(s.IPAddress)))
	buf.WriteString(s.IPAddress)

	for _, ts := range []time.Time{s.CreatedAt, s.ExpiresAt, s.LastActivity} {
		if err := binary.Write(&buf, binary.BigEndian, ts.UnixNano()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. The returned session has no ID.
func Decode(data []byte) (*Session, error) {
	s, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return s, nil
}

func decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if s.UserID, err = readString(reader, int(userLen)); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}

	var uaLen uint16
	if err := binary.Read(reader, binary.BigEndian, &uaLen); err != nil {
		return nil, err
	}
	if s.UserAgent, err = readString(reader, int(uaLen)); err != nil {
		return nil, err
	}

	ipLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if s.IPAddress, err = readString(reader, int(ipLen)); err != nil {
		return nil, err
	}

	for _, dst := range []*time.Time{&s.CreatedAt, &s.ExpiresAt, &s.LastActivity} {
		var nanos int64
		if err := binary.Read(reader, binary.BigEndian, &nanos); err != nil {
			return nil, err
		}
		*dst = time.Unix(0, nanos)
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes")
	}

	return s, nil
}

func readString(r *bytes.Reader, n int) (string, error) {
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
