package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatOK(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		width  int
		height int
		fpsNum int
		fpsDen int
	}{
		{"debug alias", "debug", 300, 200, 25, 1},
		{"pal alias", "pal", 788, 576, 25, 1},
		{"720p60", "720p60", 1280, 720, 60, 1},
		{"explicit WxH@R", "1024x768@60", 1024, 768, 60, 1},
		{"VGA@60", "VGA@60", 640, 480, 60, 1},
		{"4k@60", "4k@60", 4096, 2160, 60, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.width, got.Width)
			assert.Equal(t, tc.height, got.Height)
			assert.Equal(t, tc.fpsNum, got.FPSNum)
			assert.Equal(t, tc.fpsDen, got.FPSDen)
		})
	}
}

func TestParseFormatErrors(t *testing.T) {
	cases := []string{
		"video/x-raw,height=[400,800],width=500,framerate=25/1",
		"720p@75",
		"video/x-raw,height=10,width=500,framerate=25/1",
		"bad-format-string",
	}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := ParseFormat(in)
			assert.Error(t, err)
		})
	}
}

func TestParseFormatIdempotent(t *testing.T) {
	valid := []string{"debug", "pal", "720p60", "1024x768@60", "VGA@60", "4k@60"}
	for _, in := range valid {
		t.Run(in, func(t *testing.T) {
			first, err := ParseFormat(in)
			require.NoError(t, err)
			second, err := ParseFormat(first.String())
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestNTSCAliasResolvesTo16x9(t *testing.T) {
	got, err := ParseFormat("ntsc@25")
	require.NoError(t, err)
	assert.Equal(t, 864, got.Width)
	assert.Equal(t, 480, got.Height)

	got43, err := ParseFormat("ntsc-4:3@25")
	require.NoError(t, err)
	assert.Equal(t, 720, got43.Width)
	assert.Equal(t, 534, got43.Height)
}
