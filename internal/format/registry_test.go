package format

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/model"
)

func TestRegisterKeepsPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{ID: "canonical", Priority: -1})
	r.Register(Descriptor{ID: "qq", Priority: 0})
	r.Register(Descriptor{ID: "wechat", Priority: 0})

	ids := make([]string, 0, 3)
	for _, d := range r.List() {
		ids = append(ids, d.ID)
	}
	// canonical (-1) sorts first; qq/wechat (both 0) keep registration order.
	assert.Equal(t, []string{"canonical", "qq", "wechat"}, ids)
}

func TestListReturnsACopy(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{ID: "qq", Priority: 0})
	out := r.List()
	out[0].ID = "mutated"
	assert.Equal(t, "qq", r.List()[0].ID)
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSniffMatchesSignature(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{
		ID:         "qq",
		Name:       "QQ Export",
		Platform:   model.PlatformQQ,
		Priority:   0,
		Extensions: []string{".json"},
		Signature: Signature{
			Patterns:       []*regexp.Regexp{regexp.MustCompile(`"uin"\s*:`)},
			RequiredFields: []string{"group_code", "members", "messages"},
		},
	})
	path := writeTempFile(t, "export.json", `{"group_code":"1","members":[{"uin":"1"}],"messages":[]}`)

	res, err := Sniff(r, path, DefaultPrefixSize)
	require.NoError(t, err)
	assert.Equal(t, "qq", res.Descriptor.ID)
}

func TestSniffReturnsDiagnosisOnNoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{
		ID:         "wechat",
		Name:       "WeChat Export",
		Priority:   0,
		Extensions: []string{".json"},
		Signature: Signature{
			RequiredFields: []string{"talker", "contacts", "messages"},
		},
	})
	path := writeTempFile(t, "export.json", `{"talker":"x","messages":[]}`)

	_, err := Sniff(r, path, DefaultPrefixSize)
	require.Error(t, err)
	code, ok := coreerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.CodeUnrecognizedFormat, code)

	ce, ok := err.(*coreerr.Error)
	require.True(t, ok)
	if assert.NotNil(t, ce.Diagnosis) && assert.Len(t, ce.Diagnosis.PartialMatches, 1) {
		assert.Equal(t, "WeChat Export", ce.Diagnosis.PartialMatches[0].FormatName)
		assert.Contains(t, ce.Diagnosis.PartialMatches[0].MissingFields, "contacts")
	}
}

func TestSniffRespectsExtensionConstraint(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{
		ID:         "qq",
		Extensions: []string{".json"},
		Signature:  Signature{RequiredFields: []string{"group_code"}},
	})
	path := writeTempFile(t, "export.txt", `{"group_code":"1"}`)

	_, err := Sniff(r, path, DefaultPrefixSize)
	require.Error(t, err)
}
