package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSpecVersion(t *testing.T) {
	cases := []struct {
		specID  string
		want    uint32
		wantErr bool
	}{
		{specID: "swapnet@114", want: 114},
		{specID: "swapnet@0", want: 0},
		{specID: "chainflip-node@10050", want: 10050},
		{specID: "swapnet", wantErr: true},
		{specID: "swapnet@", wantErr: true},
		{specID: "swapnet@abc", wantErr: true},
		{specID: "", wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.specID, func(t *testing.T) {
			got, err := ParseSpecVersion(c.specID)
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestBlockIndex(t *testing.T) {
	require.Equal(t, "123-0", BlockIndex(123, 0))
	require.Equal(t, "0-7", BlockIndex(0, 7))
}
