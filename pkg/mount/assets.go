package mount

import _ "embed"

//go:embed assets/fallback_short.mp4
var fallbackShort []byte

//go:embed assets/fallback_long.mp4
var fallbackLong []byte
