package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "only separators", raw: " , ,", want: nil},
		{name: "single origin", raw: "http://localhost:3000", want: []string{"http://localhost:3000"}},
		{
			name: "trims and dedupes preserving order",
			raw:  " http://b ,http://a,http://b,, http://a",
			want: []string{"http://b", "http://a"},
		},
		{name: "case is significant", raw: "X,x", want: []string{"X", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.raw))
		})
	}
}
