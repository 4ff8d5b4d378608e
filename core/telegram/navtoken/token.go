// Package navtoken encodes navigational actions into compact opaque tokens
// that fit inside Telegram callback payloads, and decodes them back into
// typed actions. Large identifiers are carried as short prefixes and resolved
// against the requesting user's current candidate set at decode time.
package navtoken

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxLen is the hard ceiling for an encoded token. Telegram limits callback
// data to 64 bytes, and the surrounding callback framing consumes part of it.
const MaxLen = 30

const (
	sep        = ":"
	scopeAll   = "*"
	prefixLen  = 8
	dateDigits = 8
	dateLayout = "2006-01-02"
)

// Verb is a single-character navigation verb code.
type Verb byte

const (
	// VerbSetPeriod switches the stats period anchored at Action.Date.
	VerbSetPeriod Verb = 'p'
	// VerbStepForward moves the anchor one period forward.
	VerbStepForward Verb = 'f'
	// VerbStepBack moves the anchor one period backward.
	VerbStepBack Verb = 'b'
	// VerbViewItem opens item Action.Index from the current list.
	VerbViewItem Verb = 'i'
	// VerbViewPage jumps to page Action.Index of the current list.
	VerbViewPage Verb = 'g'
)

func (v Verb) valid() bool {
	switch v {
	case VerbSetPeriod, VerbStepForward, VerbStepBack, VerbViewItem, VerbViewPage:
		return true
	}
	return false
}

// String returns the verb code as text.
func (v Verb) String() string { return string(rune(v)) }

// Action is a decoded navigational action: a verb, an optional scope filter
// (a full identifier, empty meaning "all"), and either an anchor date in
// YYYY-MM-DD form or a list index depending on the verb.
type Action struct {
	Verb    Verb
	ScopeID string
	Date    string
	Index   int
}

// Context supplies the requesting user's current candidate identifiers for
// scope resolution. Tokens are meaningful only relative to this set.
type Context struct {
	ScopeIDs []string
}

var (
	// ErrBadToken reports a token that does not parse at all.
	ErrBadToken = errors.New("navtoken: malformed token")
	// ErrUnknownScope reports a scope prefix matching no current candidate.
	ErrUnknownScope = errors.New("navtoken: scope matches no candidate")
	// ErrAmbiguousScope reports a scope prefix matching several candidates.
	ErrAmbiguousScope = errors.New("navtoken: scope matches multiple candidates")
)

// Encode renders the action as a token guaranteed to fit MaxLen.
// Button payloads that encode navigation must go through here so the length
// ceiling holds for every valid action.
func Encode(a Action) (string, error) {
	if !a.Verb.valid() {
		return "", fmt.Errorf("navtoken: unknown verb %q", a.Verb)
	}

	var b strings.Builder
	b.WriteByte(byte(a.Verb))
	b.WriteString(sep)
	b.WriteString(encodeScope(a.ScopeID))

	switch a.Verb {
	case VerbViewItem, VerbViewPage:
		if a.Index < 0 {
			return "", fmt.Errorf("navtoken: negative index %d", a.Index)
		}
		b.WriteString(sep)
		b.WriteString(strconv.Itoa(a.Index))
	default:
		if a.Date != "" {
			digits, err := compactDate(a.Date)
			if err != nil {
				return "", err
			}
			b.WriteString(sep)
			b.WriteString(digits)
		}
	}

	token := b.String()
	if len(token) > MaxLen {
		return "", fmt.Errorf("navtoken: token %q exceeds %d bytes", token, MaxLen)
	}
	return token, nil
}

// Decode parses a token and resolves its scope prefix against ctx.
// A prefix matching zero or several candidates fails explicitly; silently
// picking one could route the user to an account they did not select.
func Decode(token string, ctx Context) (Action, error) {
	parts := strings.Split(token, sep)
	if len(parts) < 2 || len(parts) > 3 {
		return Action{}, fmt.Errorf("%w: %q", ErrBadToken, token)
	}
	if len(parts[0]) != 1 {
		return Action{}, fmt.Errorf("%w: %q", ErrBadToken, token)
	}

	verb := Verb(parts[0][0])
	if !verb.valid() {
		return Action{}, fmt.Errorf("%w: unknown verb in %q", ErrBadToken, token)
	}

	scopeID, err := resolveScope(parts[1], ctx)
	if err != nil {
		return Action{}, err
	}

	a := Action{Verb: verb, ScopeID: scopeID}
	if len(parts) == 3 {
		switch verb {
		case VerbViewItem, VerbViewPage:
			idx, err := strconv.Atoi(parts[2])
			if err != nil || idx < 0 {
				return Action{}, fmt.Errorf("%w: bad index in %q", ErrBadToken, token)
			}
			a.Index = idx
		default:
			date, err := expandDate(parts[2])
			if err != nil {
				return Action{}, err
			}
			a.Date = date
		}
	}
	return a, nil
}

func encodeScope(scopeID string) string {
	if scopeID == "" {
		return scopeAll
	}
	if len(scopeID) > prefixLen {
		return scopeID[:prefixLen]
	}
	return scopeID
}

func resolveScope(scope string, ctx Context) (string, error) {
	if scope == "" {
		return "", fmt.Errorf("%w: empty scope", ErrBadToken)
	}
	if scope == scopeAll {
		return "", nil
	}

	var match string
	found := 0
	for _, id := range ctx.ScopeIDs {
		if strings.HasPrefix(id, scope) {
			match = id
			found++
			if found > 1 {
				return "", fmt.Errorf("%w: %q", ErrAmbiguousScope, scope)
			}
		}
	}
	if found == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	return match, nil
}

// compactDate strips the separators from a YYYY-MM-DD date.
func compactDate(date string) (string, error) {
	digits := strings.ReplaceAll(date, "-", "")
	if len(digits) != dateDigits {
		return "", fmt.Errorf("navtoken: bad date %q, want %s", date, dateLayout)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("navtoken: bad date %q, want %s", date, dateLayout)
		}
	}
	return digits, nil
}

// expandDate re-inserts separators at fixed offsets. Calendar validity is the
// business of downstream date arithmetic, not the codec.
func expandDate(digits string) (string, error) {
	if len(digits) != dateDigits {
		return "", fmt.Errorf("%w: bad date %q", ErrBadToken, digits)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: bad date %q", ErrBadToken, digits)
		}
	}
	return digits[:4] + "-" + digits[4:6] + "-" + digits[6:8], nil
}
