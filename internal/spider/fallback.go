package spider

import (
	_ "embed"
	"time"
)

//go:embed assets/fallback_spider.jar
var fallbackJAR []byte

// FallbackBinary returns a copy of the embedded fallback JAR.
func FallbackBinary() []byte {
	return append([]byte(nil), fallbackJAR...)
}

// FallbackRecord builds an unsuccessful record around the embedded JAR.
func FallbackRecord(now time.Time, attempts int) Record {
	return newRecord(FallbackBinary(), FallbackOrigin, false, now, attempts)
}
