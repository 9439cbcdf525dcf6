package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"bare object", `{"amount": 10}`, `{"amount": 10}`, true},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} hope that helps {"c":3}`, `{"a":{"b":2}}`, true},
		{"brace inside string", `{"description":"door {left", "amount":5}`, `{"description":"door {left", "amount":5}`, true},
		{"escaped quote", `{"d":"say \"}\" now"}`, `{"d":"say \"}\" now"}`, true},
		{"no object", `I could not read the receipt.`, "", false},
		{"unbalanced", `{"amount": 10`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeDataURI(t *testing.T) {
	img, err := DecodeDataURI("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, "aGVsbG8=", img.Base64)
	assert.Equal(t, []byte("hello"), img.Data)
}

func TestDecodeDataURI_DefaultsMIME(t *testing.T) {
	img, err := DecodeDataURI("data:;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
}

func TestDecodeDataURI_Invalid(t *testing.T) {
	for _, uri := range []string{
		"",
		"data:image/jpeg;base64",
		"data:image/jpeg;base64,",
		"data:image/jpeg;base64,###not-base64###",
	} {
		_, err := DecodeDataURI(uri)
		assert.True(t, errors.Is(err, ErrInvalidImageData), "uri %q: got %v", uri, err)
	}
}

func TestEncodeDataURI_RoundTrip(t *testing.T) {
	uri := EncodeDataURI("image/webp", []byte{1, 2, 3})
	img, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIMEType)
	assert.Equal(t, []byte{1, 2, 3}, img.Data)
}
