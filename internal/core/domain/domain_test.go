package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestUnsupportedPlatformError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *UnsupportedPlatformError
		want string
	}{
		{
			name: "UnknownOS_ShowsOSOnly",
			err:  &UnsupportedPlatformError{OperatingSystem: "plan9", Architecture: "x64"},
			want: "Unsupported platform: plan9",
		},
		{
			name: "UnknownArch_ShowsBoth",
			err:  &UnsupportedPlatformError{OperatingSystem: "linux", Architecture: "ia32"},
			want: "Unsupported platform: linux ia32",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestDownloadError_CarriesStatusAndURL(t *testing.T) {
	err := &DownloadError{URL: "https://example.test/v1.2.3/linux-x64-gbnf-engine", StatusCode: 404}

	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "https://example.test/v1.2.3/linux-x64-gbnf-engine")

	var target *DownloadError
	wrapped := fmt.Errorf("activation: %w", err)
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 404, target.StatusCode)
}

func TestTrace_ListsCauseChain(t *testing.T) {
	root := errors.New("exec format error")
	err := &SpawnError{Path: "/opt/bin/linux-x64-gbnf-engine", Err: fmt.Errorf("start process: %w", root)}

	trace := Trace(err)

	assert.Contains(t, trace, "*domain.SpawnError")
	assert.Contains(t, trace, "caused by")
	assert.Contains(t, trace, "exec format error")
	assert.Empty(t, Trace(nil))
}

func TestLifecycleState_Transitions(t *testing.T) {
	assert.True(t, StateStopped.CanTransition(StateStarting))
	assert.True(t, StateStarting.CanTransition(StateRunning))
	assert.True(t, StateStarting.CanTransition(StateFailed))
	assert.True(t, StateRunning.CanTransition(StateStopped))
	assert.True(t, StateFailed.CanTransition(StateStopped))

	assert.False(t, StateStopped.CanTransition(StateRunning))
	assert.False(t, StateFailed.CanTransition(StateRunning))
	assert.False(t, StateRunning.CanTransition(StateStarting))
	assert.Equal(t, "unknown", LifecycleState(42).String())
}

func TestDocumentSelector_Matches(t *testing.T) {
	selector := NewFileSelector("gbnf")

	tests := []struct {
		name string
		doc  Document
		want bool
	}{
		{"FileAndLanguage", Document{URI: "file:///home/me/grammar.gbnf", LanguageID: "gbnf"}, true},
		{"UppercaseScheme", Document{URI: "FILE:///home/me/grammar.gbnf", LanguageID: "gbnf"}, true},
		{"UntitledScheme", Document{URI: "untitled:Untitled-1", LanguageID: "gbnf"}, false},
		{"OtherLanguage", Document{URI: "file:///home/me/main.go", LanguageID: "go"}, false},
		{"BrokenURI", Document{URI: "%zz", LanguageID: "gbnf"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selector.Matches(tt.doc))
		})
	}
}

func TestDocumentSelector_PropertyBased_LanguageMustMatch(t *testing.T) {
	selector := NewFileSelector("gbnf")

	rapid.Check(t, func(t *rapid.T) {
		language := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "language")
		doc := Document{URI: "file:///tmp/x.txt", LanguageID: language}

		assert.Equal(t, language == "gbnf", selector.Matches(doc))
	})
}

func TestFileURI_UsesFileScheme(t *testing.T) {
	uri, err := FileURI("grammar.gbnf")
	require.NoError(t, err)

	assert.Regexp(t, `^file:///`, uri)
	assert.True(t, NewFileSelector("gbnf").Matches(Document{URI: uri, LanguageID: "gbnf"}))
}

func TestReleaseVersion_Tag(t *testing.T) {
	assert.Equal(t, "v1.2.3", ReleaseVersion("1.2.3").Tag())
}
