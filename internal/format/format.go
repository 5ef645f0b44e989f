// Package format resolves resolution aliases and short-form strings into
// canonical video caps, grounded on gst-switch's original
// tools/server/gstswitchopts.c:parse_format.
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Caps is the canonical, fully-specified video format gst-switch requires:
// I420, square pixel-aspect-ratio, plus width/height/framerate.
type Caps struct {
	FormatName string // always "I420"
	Width      int
	Height     int
	FPSNum     int
	FPSDen     int
	ParNum     int // pixel-aspect-ratio numerator, always 1
	ParDen     int // pixel-aspect-ratio denominator, always 1
}

// String renders the caps the way GStreamer would print them, used as the
// canonical form for idempotency checks and for embedding in pipeline
// description strings.
func (c Caps) String() string {
	return fmt.Sprintf(
		"video/x-raw,format=(string)I420,pixel-aspect-ratio=(fraction)%d/%d,"+
			"width=(int)%d,height=(int)%d,framerate=(fraction)%d/%d",
		c.ParNum, c.ParDen, c.Width, c.Height, c.FPSNum, c.FPSDen)
}

// Requirement bounds intersected with every parsed format.
const (
	minWidth   = 300
	maxWidth   = 7680
	minHeight  = 200
	maxHeight  = 4320
	maxFPSNum  = 1000
	maxFPSDen  = 1
)

// formatAlias mirrors FormatAlias/format_aliases in gstswitchopts.c.
// Shortcuts are matched longest-first (see orderedShortcuts); declaration
// order only breaks ties between shortcuts of equal length. The bare "ntsc"
// shortcut belongs to the 16:9 entry only, so it resolves to 16:9.
type formatAlias struct {
	expansion string
	shortcuts []string
}

var formatAliases = []formatAlias{
	{"300x200@25", []string{"debug"}},

	{"640x480", []string{"VGA"}},
	{"800x600", []string{"SVGA"}},
	{"1024x768", []string{"XGA"}},

	{"788x576@25", []string{"pal", "pal-4:3", "pal-dv"}},
	{"1050x576@25", []string{"pal-16:9", "pal-dvd"}},

	// The bare "ntsc" shortcut is listed only under 16:9; the 4:3 entry
	// keeps the longer "ntsc-4:3" and "ntsc-dv" shortcuts.
	{"864x480@25", []string{"ntsc-16:9", "ntsc-dvd", "ntsc"}},
	{"720x534@25", []string{"ntsc-4:3", "ntsc-dv"}},

	{"1280x720@", []string{"720p"}},
	{"1920x1080@", []string{"1080p"}},
	{"4096x2160@", []string{"2160p"}},
	{"7680x4320@", []string{"4320p"}},

	{"2048x1080", []string{"2k"}},
	{"4096x2160", []string{"4k"}},
	{"7680x4320", []string{"8k"}},
}

type shortcutEntry struct {
	text      string
	expansion string
}

var (
	sortedShortcuts     []shortcutEntry
	sortedShortcutsOnce sync.Once
)

// orderedShortcuts flattens formatAliases into a longest-shortcut-first list,
// computed once and cached.
func orderedShortcuts() []shortcutEntry {
	sortedShortcutsOnce.Do(func() {
		for _, alias := range formatAliases {
			for _, sc := range alias.shortcuts {
				sortedShortcuts = append(sortedShortcuts, shortcutEntry{text: sc, expansion: alias.expansion})
			}
		}
		sort.SliceStable(sortedShortcuts, func(i, j int) bool {
			return len(sortedShortcuts[i].text) > len(sortedShortcuts[j].text)
		})
	})
	return sortedShortcuts
}

// ParseFormat parses s (either a full "video/x-raw,..." caps string or a
// short "WxH@R" form, optionally alias-prefixed) into canonical Caps.
// Parsing fails if the result is not fully specified or falls outside the
// required bounds, mirroring parse_format in the original C server.
func ParseFormat(s string) (Caps, error) {
	if strings.Contains(s, "video/x-raw") {
		return parseStructured(s)
	}
	return parseShortForm(s)
}

// parseShortForm expands any alias prefix then scans "%dx%d@%f/%d".
func parseShortForm(s string) (Caps, error) {
	expanded := expandAlias(s)

	width, height, fpsNum, fpsDen, err := scanShort(expanded)
	if err != nil {
		return Caps{}, fmt.Errorf("parse format %q: %w", s, err)
	}

	c := Caps{
		FormatName: "I420",
		Width:      width,
		Height:     height,
		FPSNum:     fpsNum,
		FPSDen:     fpsDen,
		ParNum:     1,
		ParDen:     1,
	}
	return validate(c, s)
}

// expandAlias replaces the longest-matching known shortcut prefix of s with
// its full expansion, preserving whatever trails the shortcut (e.g. the
// "60" in "720p60" trails the "720p" shortcut). Shortcuts are tried
// longest-first so a specific alias like "ntsc-4:3" matches before the
// bare "ntsc" shortcut it would otherwise collide with as a prefix.
func expandAlias(s string) string {
	for _, shortcut := range orderedShortcuts() {
		if len(s) >= len(shortcut.text) && strings.EqualFold(s[:len(shortcut.text)], shortcut.text) {
			return shortcut.expansion + s[len(shortcut.text):]
		}
	}
	return s
}

// scanShort parses "WxH@R" where R is an integer, float, or "n/d" fraction.
// A bare "WxH" or "WxH@" (an alias such as VGA or 720p given without a
// rate) scans only two fields and is rejected here, matching the original's
// requirement that computer-resolution aliases still need an explicit
// "@rate".
func scanShort(s string) (width, height, fpsNum, fpsDen int, err error) {
	var rate float64
	fpsDen = 1

	n, scanErr := fmt.Sscanf(s, "%dx%d@%f/%d", &width, &height, &rate, &fpsDen)
	switch n {
	case 4:
		fpsNum = int(rate)
		if float64(fpsNum) != rate {
			return 0, 0, 0, 0, fmt.Errorf("non-integer framerate numerator in %q", s)
		}
		return width, height, fpsNum, fpsDen, nil
	case 3:
		fpsNum, fpsDen = fractionFromFloat(rate)
		return width, height, fpsNum, fpsDen, nil
	default:
		if scanErr == nil {
			scanErr = fmt.Errorf("could not scan %q as WxH@R", s)
		}
		return 0, 0, 0, 0, scanErr
	}
}

// fractionFromFloat reduces a decimal framerate to a small n/d fraction,
// handling the common cases (25, 29.97, 30, 59.94, 60) exactly and falling
// back to a fixed-precision reduction otherwise.
func fractionFromFloat(rate float64) (num, den int) {
	switch rate {
	case 29.97:
		return 30000, 1001
	case 59.94:
		return 60000, 1001
	case 23.976:
		return 24000, 1001
	}
	if rate == float64(int(rate)) {
		return int(rate), 1
	}
	const scale = 1000
	num = int(rate * scale)
	den = scale
	g := gcd(num, den)
	if g > 0 {
		num /= g
		den /= g
	}
	return num, den
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// parseStructured handles a full "video/x-raw,key=value,..." caps string. It
// must be fully fixed (no ranges/lists) and is intersected with the
// required bounds.
func parseStructured(s string) (Caps, error) {
	if strings.Contains(s, "[") || strings.Contains(s, "{") {
		return Caps{}, fmt.Errorf("parse format %q: caps are not fixed", s)
	}

	fields := strings.Split(s, ",")
	c := Caps{FormatName: "I420", ParNum: 1, ParDen: 1}
	haveWidth, haveHeight, haveRate := false, false, false

	for _, f := range fields[1:] {
		kv := strings.SplitN(strings.TrimSpace(f), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], stripTypeTag(kv[1])
		switch key {
		case "width":
			w, err := strconv.Atoi(val)
			if err != nil {
				return Caps{}, fmt.Errorf("parse format %q: bad width: %w", s, err)
			}
			c.Width = w
			haveWidth = true
		case "height":
			h, err := strconv.Atoi(val)
			if err != nil {
				return Caps{}, fmt.Errorf("parse format %q: bad height: %w", s, err)
			}
			c.Height = h
			haveHeight = true
		case "framerate":
			num, den, err := parseFraction(val)
			if err != nil {
				return Caps{}, fmt.Errorf("parse format %q: bad framerate: %w", s, err)
			}
			c.FPSNum, c.FPSDen = num, den
			haveRate = true
		case "format":
			if !strings.EqualFold(val, "I420") {
				return Caps{}, fmt.Errorf("parse format %q: unsupported format %q", s, val)
			}
		}
	}

	if !haveWidth || !haveHeight || !haveRate {
		return Caps{}, fmt.Errorf("parse format %q: caps are not fixed", s)
	}

	return validate(c, s)
}

// stripTypeTag removes a leading GStreamer type annotation like "(int)" or
// "(fraction)" from a structured-caps field value.
func stripTypeTag(v string) string {
	if i := strings.Index(v, ")"); strings.HasPrefix(v, "(") && i >= 0 {
		return v[i+1:]
	}
	return v
}

func parseFraction(v string) (num, den int, err error) {
	parts := strings.SplitN(v, "/", 2)
	num, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 1 {
		return num, 1, nil
	}
	den, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return num, den, nil
}

// validate intersects c against the fixed requirement bounds: I420, square
// PAR, width [300,7680], height [200,4320], framerate [0/1,1000/1].
func validate(c Caps, original string) (Caps, error) {
	if c.Width < minWidth || c.Width > maxWidth {
		return Caps{}, fmt.Errorf("parse format %q: width %d out of [%d,%d]", original, c.Width, minWidth, maxWidth)
	}
	if c.Height < minHeight || c.Height > maxHeight {
		return Caps{}, fmt.Errorf("parse format %q: height %d out of [%d,%d]", original, c.Height, minHeight, maxHeight)
	}
	if c.FPSDen <= 0 || c.FPSNum < 0 {
		return Caps{}, fmt.Errorf("parse format %q: invalid framerate %d/%d", original, c.FPSNum, c.FPSDen)
	}
	if c.FPSNum > maxFPSNum*c.FPSDen {
		return Caps{}, fmt.Errorf("parse format %q: framerate exceeds %d/1", original, maxFPSNum)
	}
	return c, nil
}
