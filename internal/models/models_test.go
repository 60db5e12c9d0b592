package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAudioRequestDuration(t *testing.T) {
	var tests = []struct {
		name    string
		body    string
		want    *float64
		wantErr bool
	}{
		{name: "number", body: `{"videoUrl":"u","duration":30}`, want: seconds(30)},
		{name: "fractional number", body: `{"videoUrl":"u","duration":12.5}`, want: seconds(12.5)},
		{name: "numeric string", body: `{"videoUrl":"u","duration":"30"}`, want: seconds(30)},
		{name: "padded string", body: `{"videoUrl":"u","duration":" 45 "}`, want: seconds(45)},
		{name: "absent", body: `{"videoUrl":"u"}`},
		{name: "null", body: `{"videoUrl":"u","duration":null}`},
		{name: "empty string", body: `{"videoUrl":"u","duration":""}`},
		{name: "word", body: `{"videoUrl":"u","duration":"ten"}`, wantErr: true},
		{name: "boolean", body: `{"videoUrl":"u","duration":true}`, wantErr: true},
		{name: "object", body: `{"videoUrl":"u","duration":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ExtractAudioRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDuration)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "u", req.VideoURL)
			assert.Equal(t, tt.want, req.Duration)
		})
	}
}

func TestExtractAudioRequestMalformedJSON(t *testing.T) {
	var req ExtractAudioRequest
	err := json.Unmarshal([]byte(`{"videoUrl":`), &req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidDuration)
}

func seconds(v float64) *float64 {
	return &v
}
