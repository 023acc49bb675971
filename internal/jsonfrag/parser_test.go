package jsonfrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectKinds(updates []Update) []Kind {
	kinds := make([]Kind, len(updates))
	for i, u := range updates {
		kinds[i] = u.Kind
	}
	return kinds
}

func TestParserWholeObject(t *testing.T) {
	p := New()
	updates := p.AddFragment(`{"location":{"city":"SF","zip":94107},"units":["c","f"]}`)
	require.NoError(t, p.Err())
	assert.True(t, p.Done())

	kinds := collectKinds(updates)
	assert.Contains(t, kinds, KindStartObject)
	assert.Contains(t, kinds, KindKey)
	assert.Contains(t, kinds, KindCompleteString)
	assert.Contains(t, kinds, KindCompleteNumber)
	assert.Contains(t, kinds, KindStartArray)
	assert.Contains(t, kinds, KindEndArray)
	assert.Contains(t, kinds, KindEndObject)
}

// TestParserByteAtATime: feeding a nested JSON object one byte at a time
// must produce the same structural updates as feeding it whole, modulo
// partialString bursts. Every value string here spans several one-byte
// fragments, so the sliced run carries partialString updates the whole run
// does not; both sides are compared with those set aside.
func TestParserByteAtATime(t *testing.T) {
	doc := `{"location":{"city":"San Francisco","zip":94107},"units":["c","f"]}`

	whole := New()
	wholeUpdates := structuralOnly(whole.AddFragment(doc))
	require.NoError(t, whole.Err())

	sliced := New()
	var slicedUpdates []Update
	for i := 0; i < len(doc); i++ {
		slicedUpdates = append(slicedUpdates, sliced.AddFragment(string(doc[i]))...)
	}
	require.NoError(t, sliced.Err())
	slicedUpdates = structuralOnly(slicedUpdates)

	require.Equal(t, len(wholeUpdates), len(slicedUpdates))
	for i := range wholeUpdates {
		assert.Equal(t, wholeUpdates[i].Path, slicedUpdates[i].Path, "update %d path", i)
		assert.Equal(t, wholeUpdates[i].Kind, slicedUpdates[i].Kind, "update %d kind", i)
	}
}

// TestParserPartialStringBursts verifies that a string split across
// fragments emits partialString updates whose concatenated TextValue equals
// the final string, terminated by a completeString.
func TestParserPartialStringBursts(t *testing.T) {
	p := New()
	var updates []Update
	for _, frag := range []string{`{"name":"`, "San ", "Fran", `cisco"}`} {
		updates = append(updates, p.AddFragment(frag)...)
	}
	require.NoError(t, p.Err())

	var text string
	var sawComplete bool
	for _, u := range updates {
		switch u.Kind {
		case KindPartialString:
			text += u.TextValue
		case KindCompleteString:
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)
	assert.Equal(t, "San Francisco", text)
}

func TestParserIllFormedJSON(t *testing.T) {
	p := New()
	p.AddFragment(`{"a": tru`)
	p.AddFragment(`gibberish`)
	assert.Error(t, p.Err())
}
