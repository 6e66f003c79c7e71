package accounts

import (
	"encoding/binary"
	"fmt"

	"go-blockdb/pkg/codec"
	"go-blockdb/pkg/customerrors"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var bin = binary.LittleEndian

const checksumSize = 8

// Account is a bank account stored in the database.
type Account struct {
	ID            uuid.UUID `json:"id"`
	AccountNumber string    `json:"account_number"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Age           int32     `json:"age"`
	Pesel         string    `json:"pesel"`
	Balance       int64     `json:"balance"`
}

// MarshalBinary encodes the account as
// id(16) | number | first name | last name | age(4) | pesel | balance(8) | checksum(8)
// where every string is a 4 byte length followed by the utf-8 bytes and the
// checksum is the xxhash64 of everything before it.
func (a *Account) MarshalBinary() ([]byte, error) {
	strs := []string{a.AccountNumber, a.FirstName, a.LastName, a.Pesel}
	size := 16 + 4 + 8 + checksumSize
	for _, s := range strs {
		if len(s) > codec.MaxStringSize {
			return nil, errors.Wrapf(customerrors.ErrDataIntegrity, "account %s: string of %d bytes is too long", a.ID, len(s))
		}
		size += 4 + len(s)
	}

	data := make([]byte, size)
	off := copy(data, a.ID[:])
	putString := func(s string) {
		bin.PutUint32(data[off:], uint32(len(s)))
		off += 4
		off += copy(data[off:], s)
	}

	putString(a.AccountNumber)
	putString(a.FirstName)
	putString(a.LastName)
	bin.PutUint32(data[off:], uint32(a.Age))
	off += 4
	putString(a.Pesel)
	bin.PutUint64(data[off:], uint64(a.Balance))
	off += 8

	bin.PutUint64(data[off:], xxhash.Sum64(data[:off]))
	return data, nil
}

// UnmarshalBinary decodes an account written by MarshalBinary. ErrChecksum
// is returned when the payload doesn't match its checksum.
func (a *Account) UnmarshalBinary(data []byte) error {
	if len(data) < 16+4*4+4+8+checksumSize {
		return errors.Wrapf(customerrors.ErrDataIntegrity, "account record of %d bytes", len(data))
	}

	body := data[:len(data)-checksumSize]
	if sum := bin.Uint64(data[len(body):]); sum != xxhash.Sum64(body) {
		return errors.Wrapf(customerrors.ErrChecksum, "account record checksum %x", sum)
	}

	off := 0
	var err error
	getString := func() string {
		if err != nil {
			return ""
		}
		if off+4 > len(body) {
			err = errors.Wrap(customerrors.ErrDataIntegrity, "account record is truncated")
			return ""
		}
		n := int(bin.Uint32(body[off:]))
		off += 4
		if n > codec.MaxStringSize || off+n > len(body) {
			err = errors.Wrapf(customerrors.ErrDataIntegrity, "bad string length %d in account record", n)
			return ""
		}
		s := string(body[off : off+n])
		off += n
		return s
	}

	copy(a.ID[:], body[0:16])
	off = 16
	a.AccountNumber = getString()
	a.FirstName = getString()
	a.LastName = getString()
	if err == nil && off+4 > len(body) {
		err = errors.Wrap(customerrors.ErrDataIntegrity, "account record is truncated")
	}
	if err != nil {
		return err
	}
	a.Age = int32(bin.Uint32(body[off:]))
	off += 4
	a.Pesel = getString()
	if err != nil {
		return err
	}
	if off+8 != len(body) {
		return errors.Wrapf(customerrors.ErrDataIntegrity, "account record has %d trailing bytes", len(body)-off-8)
	}
	a.Balance = int64(bin.Uint64(body[off:]))
	return nil
}

func (a *Account) String() string {
	return fmt.Sprintf("Account{id=%s, number=%s, name='%s %s', age=%d, pesel=%s, balance=%d}",
		a.ID, a.AccountNumber, a.FirstName, a.LastName, a.Age, a.Pesel, a.Balance)
}
