package payment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Ref
	}{
		{`{"id":"sub_123"}`, "sub_123"},
		{`{"id":5114910401}`, "5114910401"},
		{`{"id":null}`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v struct {
				ID Ref `json:"id"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.want, v.ID)
			assert.Equal(t, string(tt.want), v.ID.String())
		})
	}

	var v struct {
		ID Ref `json:"id"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &v))
}
