package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionParams_String(t *testing.T) {
	p := ActionParams{"text": "hello"}

	s, err := p.String("text")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	_, err = p.String("missing")
	var ipe *InvalidParamsError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "missing", ipe.Field)

	_, err = ActionParams{"text": 42.0}.String("text")
	require.Error(t, err)
}

func TestActionParams_Bool(t *testing.T) {
	b, err := ActionParams{"flag": true}.Bool("flag")
	require.NoError(t, err)
	assert.True(t, b)

	// Missing bools default to false.
	b, err = ActionParams{}.Bool("flag")
	require.NoError(t, err)
	assert.False(t, b)

	_, err = ActionParams{"flag": "yes"}.Bool("flag")
	require.Error(t, err)
}

func TestActionParams_Int(t *testing.T) {
	// JSON decoding produces float64.
	n, err := ActionParams{"tab_index": 2.0}.Int("tab_index")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ActionParams{"tab_index": -1.0}.Int("tab_index")
	require.NoError(t, err)
	assert.Equal(t, -1, n)

	_, err = ActionParams{"tab_index": "two"}.Int("tab_index")
	require.Error(t, err)
}

func TestActionParams_Index(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  int
	}{
		{"float", 12.0, 12},
		{"int", 7, 7},
		{"plain string", "34", 34},
		{"decorated string", "[12]", 12},
		{"labelled string", "index 5", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ActionParams{"index": tc.value}.Index("index")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ActionParams{"index": "abc"}.Index("index")
	var ipe *InvalidParamsError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "should be a valid number", ipe.Reason)

	_, err = ActionParams{}.Index("index")
	require.Error(t, err)
}
