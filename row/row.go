// Package row defines the fixed-size user record stored as a cell value.
//
// Encoded layout (291 bytes):
//
//	[0-3]     4 bytes   id
//	[4-35]    32 bytes  username, NUL-padded
//	[36-290]  255 bytes email, NUL-padded
package row

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	IDSize       = 4
	UsernameSize = 32
	EmailSize    = 255

	// Size is the encoded length of every row.
	Size = IDSize + UsernameSize + EmailSize
)

var (
	ErrInvalidID       = errors.New("row: id must be positive")
	ErrEmptyUsername   = errors.New("row: username must not be empty")
	ErrUsernameTooLong = fmt.Errorf("row: username longer than %d bytes", UsernameSize)
	ErrEmailTooLong    = fmt.Errorf("row: email longer than %d bytes", EmailSize)
)

// Row is one user record, keyed by ID in the tree.
type Row struct {
	ID       uint32 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Validate checks the row fits the fixed layout.
func (r Row) Validate() error {
	if r.ID == 0 {
		return ErrInvalidID
	}
	if r.Username == "" {
		return ErrEmptyUsername
	}
	if len(r.Username) > UsernameSize {
		return ErrUsernameTooLong
	}
	if len(r.Email) > EmailSize {
		return ErrEmailTooLong
	}
	return nil
}

// Marshal encodes the row into exactly Size bytes. Over-long fields are
// caught by Validate; Marshal itself truncates silently.
func (r Row) Marshal() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[:IDSize], r.ID)
	copy(buf[IDSize:IDSize+UsernameSize], r.Username)
	copy(buf[IDSize+UsernameSize:], r.Email)
	return buf
}

// Unmarshal decodes a row from a Size-byte buffer.
func Unmarshal(buf []byte) (Row, error) {
	if len(buf) != Size {
		return Row{}, fmt.Errorf("row: need %d bytes, got %d", Size, len(buf))
	}
	return Row{
		ID:       binary.LittleEndian.Uint32(buf[:IDSize]),
		Username: trimNul(buf[IDSize : IDSize+UsernameSize]),
		Email:    trimNul(buf[IDSize+UsernameSize:]),
	}, nil
}

func trimNul(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
