package navtoken

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scopeA = "8749ef70-1111-4a2b-9c3d-000000000001"
	scopeB = "1b2c3d4e-2222-4a2b-9c3d-000000000002"
)

func testContext() Context {
	return Context{ScopeIDs: []string{scopeA, scopeB}}
}

func TestEncodeDeterministic(t *testing.T) {
	token, err := Encode(Action{Verb: VerbStepBack, ScopeID: scopeA, Date: "2025-12-07"})
	require.NoError(t, err)
	assert.Equal(t, "b:8749ef70:20251207", token)
}

func TestEncodeAllScopes(t *testing.T) {
	token, err := Encode(Action{Verb: VerbViewPage, Index: 3})
	require.NoError(t, err)
	assert.Equal(t, "g:*:3", token)
}

func TestRoundTrip(t *testing.T) {
	cases := []Action{
		{Verb: VerbViewPage, ScopeID: scopeA, Index: 0},
		{Verb: VerbViewPage, Index: 12},
		{Verb: VerbViewItem, ScopeID: scopeB, Index: 7},
		{Verb: VerbSetPeriod, ScopeID: scopeA, Date: "2025-01-31"},
		{Verb: VerbStepForward, Date: "2024-02-29"},
		{Verb: VerbStepBack, ScopeID: scopeB, Date: "2025-12-07"},
		{Verb: VerbSetPeriod},
	}
	for _, want := range cases {
		t.Run(fmt.Sprintf("%s_%s", want.Verb, want.Date), func(t *testing.T) {
			token, err := Encode(want)
			require.NoError(t, err)

			got, err := Decode(token, testContext())
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestTokenLengthBound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	verbs := []Verb{VerbSetPeriod, VerbStepForward, VerbStepBack, VerbViewItem, VerbViewPage}
	for i := 0; i < 10000; i++ {
		a := Action{Verb: verbs[rng.Intn(len(verbs))]}
		if rng.Intn(2) == 0 {
			a.ScopeID = uuid.New().String()
		}
		switch a.Verb {
		case VerbViewItem, VerbViewPage:
			a.Index = rng.Intn(100000)
		default:
			a.Date = fmt.Sprintf("%04d-%02d-%02d", 1990+rng.Intn(60), 1+rng.Intn(12), 1+rng.Intn(28))
		}
		token, err := Encode(a)
		require.NoError(t, err)
		require.LessOrEqual(t, len(token), MaxLen, "token %q", token)
	}
}

func TestDecodeScopePrefixResolution(t *testing.T) {
	got, err := Decode("p:8749ef70:20250601", testContext())
	require.NoError(t, err)
	assert.Equal(t, scopeA, got.ScopeID, "the prefix expands to the full identifier")
}

func TestDecodeUnknownScope(t *testing.T) {
	_, err := Decode("p:deadbeef:20250601", testContext())
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestDecodeAmbiguousScope(t *testing.T) {
	ctx := Context{ScopeIDs: []string{
		"aaaa1111-0000-4000-8000-000000000001",
		"aaaa1111-9999-4000-8000-000000000002",
	}}
	_, err := Decode("p:aaaa1111:20250601", ctx)
	assert.ErrorIs(t, err, ErrAmbiguousScope)
}

func TestDecodeScopeNotInContextAnymore(t *testing.T) {
	// A token minted for scopeA is meaningless after the account is gone.
	token, err := Encode(Action{Verb: VerbViewPage, ScopeID: scopeA, Index: 1})
	require.NoError(t, err)

	_, err = Decode(token, Context{ScopeIDs: []string{scopeB}})
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestDecodeMalformedTokens(t *testing.T) {
	cases := []string{
		"",
		"p",
		"x:*:20250601",
		"pp:*:20250601",
		"p:*:2025-06-01",
		"p:*:202506",
		"p:*:2025060a",
		"g:*:-1",
		"g:*:abc",
		"p:*:20250601:extra",
		"p::20250601",
	}
	for _, token := range cases {
		t.Run(token, func(t *testing.T) {
			_, err := Decode(token, testContext())
			assert.ErrorIs(t, err, ErrBadToken)
		})
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	_, err := Encode(Action{Verb: 'z'})
	assert.Error(t, err)

	_, err = Encode(Action{Verb: VerbViewPage, Index: -1})
	assert.Error(t, err)

	_, err = Encode(Action{Verb: VerbSetPeriod, Date: "07.12.2025"})
	assert.Error(t, err)
}
