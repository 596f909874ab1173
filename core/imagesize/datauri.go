package imagesize

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/gaurav-prasanna/amppipe/core"
)

// fromDataURI decodes data:[<mediatype>][;base64],<data>.
func fromDataURI(src string) (core.Size, error) {
	meta, payload, ok := strings.Cut(src[len("data:"):], ",")
	if !ok {
		return core.Size{}, fmt.Errorf("%w: malformed data URI", ErrUnsupported)
	}

	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		data, err = decodeBase64(payload)
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		data = []byte(s)
	}
	if err != nil {
		return core.Size{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return decode(bytes.NewReader(data))
}

// decodeBase64 accepts padded or unpadded payloads with embedded whitespace.
func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Join(strings.Fields(payload), "")
	if unescaped, err := url.PathUnescape(payload); err == nil {
		payload = unescaped
	}
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}
