package format

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chatlab/chatlab-core/internal/coreerr"
)

// DefaultPrefixSize is the bounded prefix read by Sniff (§4.1).
const DefaultPrefixSize = 8 * 1024

// Result is a successful detection.
type Result struct {
	Descriptor Descriptor
	Prefix     []byte // the bytes Sniff read, handed to the parser so it
	// doesn't have to re-read the file head for its own meta scan.
}

// Sniff reads a bounded prefix of path and returns the first descriptor (in
// priority order) whose extension constraint, regex signatures, and
// required-field set all match. It never reads beyond prefixSize unless a
// caller explicitly re-sniffs with a larger size (a parser is allowed to do
// that once it knows it needs more, per §4.1).
func Sniff(r *Registry, path string, prefixSize int) (Result, error) {
	if prefixSize <= 0 {
		prefixSize = DefaultPrefixSize
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, coreerr.Wrap(coreerr.CodeIO, err, "open for sniffing")
	}
	defer f.Close()

	buf := make([]byte, prefixSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Result{}, coreerr.Wrap(coreerr.CodeIO, err, "read prefix")
	}
	prefix := buf[:n]
	ext := strings.ToLower(filepath.Ext(path))

	var partial []coreerr.PartialMatch
	for _, d := range r.List() {
		if len(d.Extensions) > 0 && !extMatches(d.Extensions, ext) {
			continue
		}
		missing := missingSignatures(d.Signature, prefix)
		satisfied := len(d.Signature.Patterns)+len(d.Signature.RequiredFields) - len(missing)
		if len(missing) == 0 {
			return Result{Descriptor: d, Prefix: prefix}, nil
		}
		if satisfied >= 1 {
			partial = append(partial, coreerr.PartialMatch{FormatName: d.Name, MissingFields: missing})
		}
	}

	return Result{}, coreerr.WithDiagnosis("no registered format matched this file", coreerr.Diagnosis{
		Suggestion:     "unrecognized_format",
		PartialMatches: partial,
	})
}

func extMatches(exts []string, ext string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// missingSignatures evaluates d's signature against prefix and returns the
// human-readable list of whatever didn't match, empty when everything did.
func missingSignatures(sig Signature, prefix []byte) []string {
	var missing []string
	for _, p := range sig.Patterns {
		if !p.Match(prefix) {
			missing = append(missing, "pattern:"+p.String())
		}
	}
	for _, field := range sig.RequiredFields {
		if !hasJSONKey(prefix, field) {
			missing = append(missing, field)
		}
	}
	return missing
}

// hasJSONKey is a bounded, allocation-light check for the quoted name
// `"field"` appearing anywhere in buf; it does not check that a colon
// follows, so a string value with that text also matches. It is intentionally not a full JSON parse — the prefix is by
// construction a possibly-truncated document.
func hasJSONKey(buf []byte, field string) bool {
	needle := []byte("\"" + field + "\"")
	return indexBytes(buf, needle) >= 0
}

func indexBytes(haystack, needle []byte) int {
	n, m := len(haystack), len(needle)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if string(haystack[i:i+m]) == string(needle) {
			return i
		}
	}
	return -1
}
