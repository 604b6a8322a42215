package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseEncode(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{name: "ok", resp: OK(), want: `{"status":"OK"}`},
		{name: "error", resp: Error(), want: `{"status":"ERROR"}`},
		{name: "not implemented", resp: NotImplemented(), want: `{"status":"NOT IMPLEMENTED"}`},
		{name: "empty data", resp: OKData([]struct{}{}), want: `{"status":"OK","data":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resp.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestResponseEncodeRows(t *testing.T) {
	type row struct {
		Talk string `json:"talk"`
		Room string `json:"room"`
	}

	got, err := OKData([]row{{Talk: "t1", Room: "A1"}}).Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"status":"OK","data":[{"talk":"t1","room":"A1"}]}`, string(got))
}
