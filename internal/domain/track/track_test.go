package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    Meta
		wantErr bool
	}{
		{
			name:    "valid track",
			meta:    Meta{ID: "t1", Name: "Night Drive", Artist: "Sacral"},
			wantErr: false,
		},
		{
			name:    "empty ID",
			meta:    Meta{Name: "Night Drive"},
			wantErr: true,
		},
		{
			name:    "whitespace ID",
			meta:    Meta{ID: "   "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMeta_Playable(t *testing.T) {
	assert.False(t, Meta{ID: "t1"}.Playable())
	assert.False(t, Meta{ID: "t1", AudioURL: "  "}.Playable())
	assert.True(t, Meta{ID: "t1", AudioURL: "https://cdn.example/t1.m3u8"}.Playable())
}

func TestMeta_WithAudioURL(t *testing.T) {
	m := Meta{ID: "t1"}
	withURL := m.WithAudioURL("https://cdn.example/t1.m3u8")

	assert.Empty(t, m.AudioURL, "original should be untouched")
	assert.Equal(t, "https://cdn.example/t1.m3u8", withURL.AudioURL)
	assert.Equal(t, m.ID, withURL.ID)
}
