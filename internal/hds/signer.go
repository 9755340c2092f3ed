package hds

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"hdsfetch/internal/fault"

	"github.com/samber/mo"
)

const verificationMessage = "st=0~exp=9999999999~acl=*~data="

// Signer produces the player verification query required by hosts whose
// manifest carries a pv-2.0 field.
type Signer struct {
	player string
	key    []byte
}

// NewSigner creates a Signer for the given player identifier and HMAC key.
func NewSigner(player string, key []byte) *Signer {
	return &Signer{player: player, key: key}
}

// Sign turns a "<data>;<hdntl>" pv-2.0 value into the pvtoken query. It
// returns None when pv is absent or empty.
func (s *Signer) Sign(pv mo.Option[string]) (mo.Option[string], error) {
	value, ok := pv.Get()
	if !ok || value == "" {
		return mo.None[string](), nil
	}
	parts := strings.Split(value, ";")
	if len(parts) != 2 {
		return mo.None[string](), fault.Format("", 0, "pv-2.0 value has %d fields, want 2", len(parts))
	}
	data, hdntl := parts[0], parts[1]

	msg := verificationMessage + data + "!" + s.player
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(msg))
	token := msg + "~hmac=" + hex.EncodeToString(mac.Sum(nil))

	return mo.Some("pvtoken=" + EncodeParam(token) + "&" + EncodeParam(hdntl)), nil
}

// EncodeParam percent-encodes a query parameter value. Printable ASCII is
// kept except for '%', '+', '&', ';' and '#'; spaces become '+' and every
// other byte becomes %XX.
func EncodeParam(v string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case c > ' ' && c < 0x7f && !strings.ContainsRune("%+&;#", rune(c)):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}
