package hls

import (
	"fmt"
	"regexp"
	"strconv"
)

// segmentNumber captures the last run of digits right before a segment extension.
var segmentNumber = regexp.MustCompile(`(?i)(\d+)(\.(?:ts|m4s|aac|mp4)(?:[?#].*)?)$`)

// PredictNext guesses the next n segment URLs of a numbered series, keeping
// zero padding: seg_009.ts → seg_010.ts, seg_011.ts. Returns nil when url has no
// sequence number.
func PredictNext(url string, n int) []string {
	loc := segmentNumber.FindStringSubmatchIndex(url)
	if loc == nil || n <= 0 {
		return nil
	}
	digits := url[loc[2]:loc[3]]
	cur, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return nil
	}
	prefix, suffix := url[:loc[2]], url[loc[4]:]
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("%s%0*d%s", prefix, len(digits), cur+uint64(i), suffix))
	}
	return out
}
