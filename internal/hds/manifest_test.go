package hds_test

import (
	"encoding/base64"
	"testing"

	"hdsfetch/internal/fault"
	"hdsfetch/internal/hds"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestURL = "http://origin.example/z/vod/clip.mp4/manifest.f4m?hdcore"

func TestParseManifest(t *testing.T) {
	meta := base64.StdEncoding.EncodeToString([]byte("metadata-bytes"))
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<manifest xmlns="http://ns.adobe.com/f4m/1.0">
  <id>clip</id>
  <streamType>recorded</streamType>
  <duration>123.5</duration>
  <baseURL>http://cdn.example/base/</baseURL>
  <pv-2.0>data;hdntl</pv-2.0>
  <bootstrapInfo profile="named" id="bs0" url="clip.bootstrap"/>
  <bootstrapInfo profile="named" id="bs1">AAAA
  AAAA</bootstrapInfo>
  <media url="clip_hi" bitrate="2000" bootstrapInfoId="bs0">
    <metadata>` + meta[:4] + `
      ` + meta[4:] + `</metadata>
  </media>
  <media url="clip_lo" bitrate=" 500 " bootstrapInfoId="bs1"/>
</manifest>`

	m, err := hds.ParseManifest([]byte(doc), manifestURL)
	require.NoError(t, err)

	assert.Equal(t, "http://cdn.example/base/", m.BaseURL)
	assert.Equal(t, mo.Some(123.5), m.Duration)
	assert.Equal(t, mo.Some("data;hdntl"), m.PlayerVerification)
	assert.Equal(t, "clip", m.Fields["id"])
	assert.Equal(t, "recorded", m.Fields["streamType"])
	assert.NotContains(t, m.Fields, "media")

	require.Len(t, m.Media, 2)
	hi, lo := m.Media[0], m.Media[1]
	assert.Equal(t, "clip_hi", hi.URL)
	assert.Equal(t, mo.Some(2000), hi.Bitrate)
	assert.Equal(t, []byte("metadata-bytes"), hi.Metadata)
	require.NotNil(t, hi.Bootstrap)
	assert.Equal(t, "bs0", hi.Bootstrap.ID)
	assert.Equal(t, "named", hi.Bootstrap.Profile)
	assert.Equal(t, mo.Some("clip.bootstrap"), hi.Bootstrap.URL)
	assert.Empty(t, hi.Bootstrap.Data)

	assert.Equal(t, mo.Some(500), lo.Bitrate)
	assert.Nil(t, lo.Metadata)
	require.NotNil(t, lo.Bootstrap)
	assert.True(t, lo.Bootstrap.URL.IsAbsent())
	assert.Equal(t, make([]byte, 6), lo.Bootstrap.Data)
}

func TestParseManifest_Defaults(t *testing.T) {
	doc := `<manifest xmlns="http://ns.adobe.com/f4m/2.0">
  <bootstrapInfo id="b" url="x"/>
  <media url="m" bootstrapInfoId="b" metadata="` + base64.StdEncoding.EncodeToString([]byte{2}) + `"/>
</manifest>`

	m, err := hds.ParseManifest([]byte(doc), manifestURL)
	require.NoError(t, err)
	assert.Equal(t, manifestURL, m.BaseURL)
	assert.True(t, m.Duration.IsAbsent())
	assert.True(t, m.PlayerVerification.IsAbsent())
	require.Len(t, m.Media, 1)
	assert.True(t, m.Media[0].Bitrate.IsAbsent())
	assert.Equal(t, []byte{2}, m.Media[0].Metadata)
}

func TestParseManifest_ChildManifest(t *testing.T) {
	doc := `<manifest xmlns="http://ns.adobe.com/f4m/2.0">
  <media href="child.f4m" bitrate="800"/>
</manifest>`

	m, err := hds.ParseManifest([]byte(doc), manifestURL)
	require.NoError(t, err)
	require.Len(t, m.Media, 1)
	assert.Equal(t, "child.f4m", m.Media[0].Href)
	assert.Nil(t, m.Media[0].Bootstrap)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not xml", `<manifest`, fault.ErrFormat},
		{"wrong root", `<playlist xmlns="http://ns.adobe.com/f4m/1.0"/>`, fault.ErrFormat},
		{"wrong namespace", `<manifest xmlns="urn:other"/>`, fault.ErrFormat},
		{"bad duration", `<manifest xmlns="http://ns.adobe.com/f4m/1.0"><duration>long</duration></manifest>`, fault.ErrFormat},
		{
			"bad bitrate",
			`<manifest xmlns="http://ns.adobe.com/f4m/1.0"><bootstrapInfo id="b" url="x"/><media url="m" bitrate="fast" bootstrapInfoId="b"/></manifest>`,
			fault.ErrFormat,
		},
		{
			"bad bootstrap data",
			`<manifest xmlns="http://ns.adobe.com/f4m/1.0"><bootstrapInfo id="b">!!!</bootstrapInfo></manifest>`,
			fault.ErrFormat,
		},
		{
			"unknown bootstrap",
			`<manifest xmlns="http://ns.adobe.com/f4m/1.0"><bootstrapInfo id="b" url="x"/><media url="m" bootstrapInfoId="c"/></manifest>`,
			fault.ErrLookup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hds.ParseManifest([]byte(tt.doc), manifestURL)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestManifestURL(t *testing.T) {
	u, err := hds.ManifestURL("http://origin.example/", "z/vod/clip.mp4", mo.None[string]())
	require.NoError(t, err)
	assert.Equal(t, "http://origin.example/z/vod/clip.mp4/manifest.f4m?hdcore", u)

	u, err = hds.ManifestURL("http://origin.example/", "z/vod/clip.mp4", mo.Some("exp=1~acl=/*~hmac=ab&c"))
	require.NoError(t, err)
	assert.Equal(t, "http://origin.example/z/vod/clip.mp4/manifest.f4m?hdcore&hdnea=exp=1~acl=/*~hmac=ab%26c", u)
}

func TestMediaURL(t *testing.T) {
	m := &hds.Manifest{BaseURL: "http://origin.example/z/vod/manifest.f4m"}
	media := &hds.MediaEntry{URL: "clip_"}

	u, err := hds.MediaURL(m, media, &hds.Bootstrap{MovieIdentifier: "movie", HighestQuality: mo.Some("_hi")})
	require.NoError(t, err)
	assert.Equal(t, "http://origin.example/z/vod/clip_movie_hi", u)

	u, err = hds.MediaURL(m, media, &hds.Bootstrap{MovieIdentifier: "movie", ServerBaseURL: mo.Some("http://edge.example/hds/")})
	require.NoError(t, err)
	assert.Equal(t, "http://edge.example/hds/clip_movie", u)
}
