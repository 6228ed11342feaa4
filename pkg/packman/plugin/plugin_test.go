package plugin

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shape interface{ Area() float64 }

type square struct{ Side float64 }

func (s square) Area() float64 { return s.Side * s.Side }

type rect struct{ W, H float64 }

func (r rect) Area() float64 { return r.W * r.H }

func shapes() *Registry[shape] {
	r := NewRegistry[shape]("shape", "kind")
	r.Register("square", Strict(func(c struct {
		Side float64 `json:"side"`
	}) (shape, error) {
		if c.Side <= 0 {
			return nil, errors.New("side must be positive")
		}
		return square{Side: c.Side}, nil
	}))
	r.Register("rect", Strict(func(c struct {
		W float64 `json:"w"`
		H float64 `json:"h"`
	}) (shape, error) {
		return rect{W: c.W, H: c.H}, nil
	}))
	return r
}

func TestDecode(t *testing.T) {
	t.Parallel()
	r := shapes()

	tests := []struct {
		name    string
		raw     string
		want    shape
		wantErr error
	}{
		{name: "square", raw: `{"kind":"square","side":2}`, want: square{Side: 2}},
		{name: "rect", raw: `{"h":3,"kind":"rect","w":2}`, want: rect{W: 2, H: 3}},
		{name: "unknown tag", raw: `{"kind":"circle"}`, wantErr: ErrUnknownVariant},
		{name: "missing tag", raw: `{"side":2}`, wantErr: ErrMissingTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Decode(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := shapes().Decode(json.RawMessage(`{"kind":"square","side":2,"colour":"red"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestDecodeBuildError(t *testing.T) {
	t.Parallel()
	_, err := shapes().Decode(json.RawMessage(`{"kind":"square","side":-1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "side must be positive")
}

func TestUnknownVariantListsKnown(t *testing.T) {
	t.Parallel()
	_, err := shapes().Decode(json.RawMessage(`{"kind":"circle"}`))
	var unknown *UnknownVariantError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"rect", "square"}, unknown.Known)
	assert.Equal(t, "circle", unknown.Value)
}

func TestRegisterTwicePanics(t *testing.T) {
	t.Parallel()
	r := shapes()
	assert.Panics(t, func() {
		r.Register("square", func(json.RawMessage) (shape, error) { return nil, nil })
	})
}

func TestDecodeAll(t *testing.T) {
	t.Parallel()
	got, err := shapes().DecodeAll([]json.RawMessage{
		json.RawMessage(`{"kind":"square","side":1}`),
		json.RawMessage(`{"kind":"rect","w":1,"h":2}`),
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = shapes().DecodeAll([]json.RawMessage{json.RawMessage(`{"kind":"nope"}`)})
	assert.ErrorIs(t, err, ErrUnknownVariant)
}
