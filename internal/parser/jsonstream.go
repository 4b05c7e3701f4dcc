package parser

import (
	"encoding/json"
	"errors"
	"io"
)

// ErrArrayFieldNotFound is returned by SeekToArrayField when the named
// field never appears (or isn't array-valued) in the token stream.
var ErrArrayFieldNotFound = errors.New("parser: array field not found")

// CountingReader wraps r and reports every Read through onRead, used by
// every format's message-array pass to compute the monotonic bytesRead a
// Progress event reports (§4.2, §5).
type CountingReader struct {
	R      io.Reader
	OnRead func(n int64)
}

func (c CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	if n > 0 && c.OnRead != nil {
		c.OnRead(int64(n))
	}
	return n, err
}

// SeekToArrayField advances dec token-by-token from the start of a
// top-level JSON object until it has consumed the opening '[' of the
// array-valued field named key, leaving dec positioned so the caller can
// iterate with dec.More()/dec.Decode for each element. This is the one
// streaming technique every JSON format parser in this module shares
// (§4.2: "Tokenize JSON inputs through a streaming tokenizer").
func SeekToArrayField(dec *json.Decoder, key string) error {
	if _, err := dec.Token(); err != nil { // opening '{'
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			continue
		}
		if name != key {
			if err := SkipValue(dec); err != nil {
				return err
			}
			continue
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return ErrArrayFieldNotFound
		}
		return nil
	}
	return ErrArrayFieldNotFound
}

// SkipValue consumes exactly one JSON value — scalar, object, or array —
// from dec without decoding it into a Go type.
func SkipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d2, ok := tok.(json.Delim); ok {
			if d2 == '{' || d2 == '[' {
				depth++
			} else {
				depth--
			}
		}
	}
	return nil
}
