package httpclient

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// MaxTextBody caps playlist and subscription bodies read through ReadBody.
const MaxTextBody = 16 << 20

// ErrBodyTooLarge is returned instead of a truncated body.
var ErrBodyTooLarge = errors.New("httpclient: body exceeds size limit")

// ReadAllLimit reads r to EOF, failing with ErrBodyTooLarge once more than limit bytes arrive.
func ReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return b, nil
}

// DecodeBody wraps resp.Body according to Content-Encoding. Go's transport only
// undoes gzip when it added Accept-Encoding itself; upstream CDNs in this space also
// answer br. Unknown encodings pass through unchanged.
func DecodeBody(resp *http.Response) (io.Reader, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch enc {
	case "", "identity":
		return resp.Body, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	}
	return resp.Body, nil
}

// ReadBody decodes resp.Body and reads it whole. Bodies over limit (MaxTextBody
// when limit <= 0) fail with ErrBodyTooLarge.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxTextBody
	}
	r, err := DecodeBody(resp)
	if err != nil {
		return nil, err
	}
	return ReadAllLimit(r, limit)
}
