package tiercache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStrategy_TTLResolvesPredefinedWindows(t *testing.T) {
	require.Equal(t, 10*time.Second, RealTime.TTL())
	require.Equal(t, 5*time.Minute, ShortTerm.TTL())
	require.Equal(t, time.Hour, MediumTerm.TTL())
	require.Equal(t, 3*time.Hour, LongTerm.TTL())
}

func TestStrategy_CustomClampsNegativeToZero(t *testing.T) {
	require.Equal(t, time.Duration(0), Custom(-time.Second).TTL())
	require.Equal(t, 42*time.Second, Custom(42*time.Second).TTL())
}

func TestStrategy_StringNamesEveryKind(t *testing.T) {
	require.Equal(t, "real_time", RealTime.String())
	require.Equal(t, "short_term", ShortTerm.String())
	require.Equal(t, "medium_term", MediumTerm.String())
	require.Equal(t, "long_term", LongTerm.String())
	require.Contains(t, Custom(time.Minute).String(), "custom(")
}

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	v := Value{"a": float64(1), "b": "two"}
	raw, err := Encode(v)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, v, decoded)
}

func TestDecodeValue_MalformedFails(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
}

type typedPayload struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestEncodeDecodeTypedRoundTrip(t *testing.T) {
	p := typedPayload{Name: "x", N: 7}
	raw, err := EncodeTyped(p)
	require.NoError(t, err)

	decoded, err := DecodeTyped[typedPayload](raw)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestFakeClock_AdvancesOnlyOnAdvance(t *testing.T) {
	fc := NewFakeClock(time.Unix(1000, 0))
	t0 := fc.Now()
	require.Equal(t, t0, fc.Now())

	fc.Advance(5 * time.Second)
	require.Equal(t, t0.Add(5*time.Second), fc.Now())
}
