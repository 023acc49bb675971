// Package jsonfrag incrementally parses a JSON value delivered as a sequence
// of arbitrarily sliced text fragments into a stream of structural updates
// keyed by JSON path. It is the building block the provider stream parsers
// use to turn a tool call's "input_json_delta"/"arguments delta" stream into
// path-addressed updates a UI can render live.
//
// A Parser instance is restartable only across instances, never within one:
// once fed a fragment, it holds scanner state for the document it started.
package jsonfrag

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the structural update shapes the parser emits.
type Kind string

// Recognized update kinds.
const (
	KindStartObject     Kind = "startObject"
	KindEndObject       Kind = "endObject"
	KindStartArray      Kind = "startArray"
	KindEndArray        Kind = "endArray"
	KindKey             Kind = "key"
	KindPartialString   Kind = "partialString"
	KindCompleteString  Kind = "completeString"
	KindCompleteNumber  Kind = "completeNumber"
	KindCompleteBoolean Kind = "completeBoolean"
	KindCompleteNull    Kind = "completeNull"
)

// Update is one structural event, addressed by Path (a dotted/bracketed JSON
// path such as "location.city" or "items[2]"). TextValue is populated for
// partialString/completeString/completeNumber/completeBoolean.
type Update struct {
	Path      string
	Kind      Kind
	TextValue string
}

type frameKind int

const (
	frameObject frameKind = iota
	frameArray
)

type frame struct {
	kind        frameKind
	path        string
	index       int    // next array index, or -1 for objects
	pendKey     bool   // object: next token must be a key
	lastKeyPath string // path of the most recently scanned object key's value
}

// mode tracks what the scanner is mid-way through across fragment boundaries.
type mode int

const (
	modeValue mode = iota
	modeString
	modeStringEscape
	modeLiteral // number/true/false/null, accumulated until a delimiter
)

// Parser holds the scanner state for exactly one JSON document assembled
// from a sequence of text fragments.
type Parser struct {
	stack []frame

	mode          mode
	buf           strings.Builder // accumulates the in-progress string/literal
	curPath       string          // path of the value currently being scanned
	stringEmitted int             // bytes of buf already surfaced as partialString
	sawAnyValue   bool
	done          bool
	err           error
}

// New returns a Parser ready to accept the first fragment of a new JSON document.
func New() *Parser { return &Parser{} }

// AddFragment feeds the next slice of raw text (which may split a token at
// an arbitrary byte boundary) and returns every structural update it could
// produce from the newly available bytes, in document order.
//
// Once Err() is non-nil the parser stops emitting updates; callers should
// surface the error but may keep the best-effort functionArgs string they
// accumulated independently (the pipeline policy, not this parser's).
func (p *Parser) AddFragment(s string) []Update {
	if p.done || p.err != nil {
		return nil
	}
	var out []Update
	for i := 0; i < len(s); i++ {
		c := s[i]
		upd, err := p.step(c)
		if err != nil {
			p.err = err
			return out
		}
		out = append(out, upd...)
	}
	if p.mode == modeString && p.curPath != "__key__" {
		if pending := p.buf.String()[p.stringEmitted:]; pending != "" {
			out = append(out, Update{Path: p.curPath, Kind: KindPartialString, TextValue: pending})
			p.stringEmitted = p.buf.Len()
		}
	}
	return out
}

// Err returns the first ill-formed-JSON error encountered, if any.
func (p *Parser) Err() error { return p.err }

// Done reports whether the top-level value has been fully closed.
func (p *Parser) Done() bool { return p.done }

func (p *Parser) step(c byte) ([]Update, error) {
	switch p.mode {
	case modeString:
		return p.stepString(c)
	case modeStringEscape:
		p.buf.WriteByte(c)
		p.mode = modeString
		return nil, nil
	case modeLiteral:
		return p.stepLiteral(c)
	default:
		return p.stepValue(c)
	}
}

func isWS(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func (p *Parser) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return &p.stack[len(p.stack)-1]
}

func (p *Parser) stepValue(c byte) ([]Update, error) {
	if isWS(c) {
		return nil, nil
	}

	// Structural characters relevant when inside a container awaiting the
	// next member (comma/close) rather than the start of a fresh value.
	switch c {
	case ',':
		return nil, p.advanceAfterValue(true)
	case ':':
		return nil, nil
	case '}':
		return p.closeContainer(frameObject, KindEndObject)
	case ']':
		return p.closeContainer(frameArray, KindEndArray)
	}

	var updates []Update
	switch c {
	case '{':
		path := p.valuePath()
		p.stack = append(p.stack, frame{kind: frameObject, path: path, pendKey: true})
		p.sawAnyValue = true
		updates = append(updates, Update{Path: path, Kind: KindStartObject})
		return updates, nil
	case '[':
		path := p.valuePath()
		p.stack = append(p.stack, frame{kind: frameArray, path: path})
		p.sawAnyValue = true
		updates = append(updates, Update{Path: path, Kind: KindStartArray})
		return updates, nil
	case '"':
		p.stringEmitted = 0
		if top := p.top(); top != nil && top.kind == frameObject && top.pendKey {
			p.mode = modeString
			p.buf.Reset()
			p.curPath = "__key__"
			return nil, nil
		}
		p.mode = modeString
		p.buf.Reset()
		p.curPath = p.valuePath()
		return nil, nil
	default:
		p.mode = modeLiteral
		p.buf.Reset()
		p.buf.WriteByte(c)
		p.curPath = p.valuePath()
		return nil, nil
	}
}

// valuePath computes the path a freshly started value occupies, given the
// current container context (array index or pending object key).
func (p *Parser) valuePath() string {
	top := p.top()
	if top == nil {
		return ""
	}
	if top.kind == frameArray {
		return fmt.Sprintf("%s[%d]", top.path, top.index)
	}
	return top.lastKeyPath
}

func (p *Parser) stepString(c byte) ([]Update, error) {
	if c == '\\' {
		p.mode = modeStringEscape
		return nil, nil
	}
	if c != '"' {
		p.buf.WriteByte(c)
		return nil, nil
	}
	// closing quote
	text := p.buf.String()
	p.buf.Reset()
	p.mode = modeValue
	if p.curPath == "__key__" {
		top := p.top()
		if top != nil {
			if top.path == "" {
				top.lastKeyPath = text
			} else {
				top.lastKeyPath = top.path + "." + text
			}
			top.pendKey = false
		}
		return []Update{{Path: p.curPathForKey(text), Kind: KindKey, TextValue: text}}, nil
	}
	var upd []Update
	if p.stringEmitted > 0 && p.stringEmitted < len(text) {
		// Flush the tail not yet surfaced, so the partials add up to text.
		upd = append(upd, Update{Path: p.curPath, Kind: KindPartialString, TextValue: text[p.stringEmitted:]})
	}
	upd = append(upd, Update{Path: p.curPath, Kind: KindCompleteString, TextValue: text})
	p.sawAnyValue = true
	if err := p.advanceAfterValue(false); err != nil {
		return upd, err
	}
	return upd, nil
}

// curPathForKey returns the path at which a Key update is reported: the
// object's own path, since the key names the slot about to be filled.
func (p *Parser) curPathForKey(key string) string {
	// Search stack for the nearest object frame (should be top).
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].kind == frameObject {
			if p.stack[i].path == "" {
				return key
			}
			return p.stack[i].path + "." + key
		}
	}
	return key
}

func (p *Parser) stepLiteral(c byte) ([]Update, error) {
	if c == ',' || c == '}' || c == ']' || isWS(c) {
		upd, err := p.finishLiteral()
		if err != nil {
			return upd, err
		}
		// Re-dispatch the delimiter through the value state machine.
		more, err := p.stepValue(c)
		return append(upd, more...), err
	}
	p.buf.WriteByte(c)
	lit := p.buf.String()
	if !strings.HasPrefix("true", lit) && !strings.HasPrefix("false", lit) &&
		!strings.HasPrefix("null", lit) && strings.Trim(lit, "0123456789+-.eE") != "" {
		return nil, fmt.Errorf("jsonfrag: invalid literal %q at %q", lit, p.curPath)
	}
	return nil, nil
}

func (p *Parser) finishLiteral() ([]Update, error) {
	text := p.buf.String()
	p.buf.Reset()
	p.mode = modeValue
	p.sawAnyValue = true

	switch text {
	case "true", "false":
		return []Update{{Path: p.curPath, Kind: KindCompleteBoolean, TextValue: text}}, nil
	case "null":
		return []Update{{Path: p.curPath, Kind: KindCompleteNull}}, nil
	default:
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return nil, fmt.Errorf("jsonfrag: invalid literal %q at %s: %w", text, p.curPath, err)
		}
		return []Update{{Path: p.curPath, Kind: KindCompleteNumber, TextValue: text}}, nil
	}
}

// advanceAfterValue updates the enclosing frame's array index after a value
// completes, and — when called for a literal comma delimiter directly —
// also handles object pendKey resets.
func (p *Parser) advanceAfterValue(isComma bool) error {
	top := p.top()
	if top == nil {
		if isComma {
			return fmt.Errorf("jsonfrag: unexpected comma outside container")
		}
		return nil
	}
	if top.kind == frameArray {
		top.index++
	} else if isComma {
		top.pendKey = true
	}
	return nil
}

func (p *Parser) closeContainer(want frameKind, kind Kind) ([]Update, error) {
	if len(p.stack) == 0 || p.stack[len(p.stack)-1].kind != want {
		return nil, fmt.Errorf("jsonfrag: mismatched close for kind %v", kind)
	}
	closed := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	upd := []Update{{Path: closed.path, Kind: kind}}
	if err := p.advanceAfterValue(false); err != nil {
		return upd, err
	}
	if len(p.stack) == 0 {
		p.done = true
	}
	return upd, nil
}
