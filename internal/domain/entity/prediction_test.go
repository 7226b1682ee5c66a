package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderText(t *testing.T) {
	result := CompletionResult{
		{{Label: "person", Score: 0.9871}, {Label: "dog", Score: 0.5}},
		{},
		{{Label: "traffic light", Score: 1}},
	}

	body, err := result.Render(ResultFormatText)
	require.NoError(t, err)
	assert.Equal(t,
		"[('person', 0.9871), ('dog', 0.5)]\n"+
			"[]\n"+
			"[('traffic light', 1.0)]\n",
		string(body),
	)
}

func TestRenderTextEmptyResult(t *testing.T) {
	body, err := CompletionResult{}.Render(ResultFormatText)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestRenderJSON(t *testing.T) {
	result := CompletionResult{
		{{Label: "person", Score: 0.75}},
		nil,
	}

	body, err := result.Render(ResultFormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `[[{"label":"person","score":0.75}],[]]`, string(body))
	assert.Nil(t, result[1], "render must not modify the result")

	body, err = CompletionResult(nil).Render(ResultFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestFormatScore(t *testing.T) {
	for in, want := range map[float64]string{
		0:                   "0.0",
		1:                   "1.0",
		0.5:                 "0.5",
		0.30000001192092896: "0.30000001192092896",
		0.0001:              "0.0001",
		0.00001:             "1e-05",
		0.000015:            "1.5e-05",
		1234567:             "1234567.0",
		1e16:                "1e+16",
		-2.5:                "-2.5",
	} {
		assert.Equal(t, want, formatScore(in), "score %v", in)
	}
}

func TestQuoteLabel(t *testing.T) {
	assert.Equal(t, "'cell phone'", quoteLabel("cell phone"))
	assert.Equal(t, `"it's"`, quoteLabel("it's"))
	assert.Equal(t, `'say "hi" it\'s'`, quoteLabel(`say "hi" it's`))
	assert.Equal(t, `'back\\slash'`, quoteLabel(`back\slash`))
}
