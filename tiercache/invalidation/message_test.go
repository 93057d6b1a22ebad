package invalidation

import (
	"testing"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ttl := 5 * time.Minute
	cases := []Message{
		NewRemove("k1", "origin-a", time.Unix(100, 0)),
		NewUpdate("k2", tiercache.Value{"x": float64(1)}, &ttl, "origin-b", time.Unix(200, 0)),
		NewUpdate("k3", tiercache.Value{"x": float64(2)}, nil, "origin-c", time.Unix(300, 0)),
		NewRemovePattern("user:*", "origin-d", time.Unix(400, 0)),
		NewRemoveBulk([]string{"a", "b", "c"}, "origin-e", time.Unix(500, 0)),
	}

	for _, m := range cases {
		raw, err := Encode(m)
		require.NoError(t, err)

		decoded, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, m, decoded)
	}
}

func TestDecode_UnknownKindFails(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"bogus","ts_ms":1,"origin":"x"}`))
	require.Error(t, err)
}

func TestDecode_MalformedPayloadFails(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}
