package hds_test

import (
	"encoding/hex"
	"testing"

	"hdsfetch/internal/fault"
	"hdsfetch/internal/hds"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *hds.Signer {
	key, err := hex.DecodeString("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	return hds.NewSigner("http://example.com/player_1.swf", key)
}

func TestSigner_Sign(t *testing.T) {
	pv := "exp=1700000000~acl=/*~data=some data~hmac=0a1b;hdntl=exp=1700000000~acl=%2f*~hmac=ff#é"

	got, err := testSigner(t).Sign(mo.Some(pv))
	require.NoError(t, err)
	assert.Equal(t, mo.Some("pvtoken=st=0~exp=9999999999~acl=*~data=exp=1700000000~acl=/*~data=some+data~hmac=0a1b"+
		"!http://example.com/player_1.swf~hmac=109282a0403fb4c4c7b8224222e43c669c17404c42c38ebfa0553136ceb197aa"+
		"&hdntl=exp=1700000000~acl=%252f*~hmac=ff%23%C3%A9"), got)
}

func TestSigner_Absent(t *testing.T) {
	s := testSigner(t)

	got, err := s.Sign(mo.None[string]())
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())

	got, err = s.Sign(mo.Some(""))
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())
}

func TestSigner_Malformed(t *testing.T) {
	s := testSigner(t)
	for _, pv := range []string{"no-separator", "a;b;c"} {
		_, err := s.Sign(mo.Some(pv))
		assert.ErrorIs(t, err, fault.ErrFormat, pv)
	}
}

func TestEncodeParam(t *testing.T) {
	assert.Equal(t, "a+b%2Bc%26d%3Be%23f%25g~h/%C3%A9", hds.EncodeParam("a b+c&d;e#f%g~h/é"))
	assert.Equal(t, "hdnea+token=1%26x", hds.EncodeParam("hdnea token=1&x"))
	assert.Equal(t, "%00%09%7F", hds.EncodeParam("\x00\t\x7f"))
	assert.Equal(t, "", hds.EncodeParam(""))
}
