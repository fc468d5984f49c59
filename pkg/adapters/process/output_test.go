package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []*Service
	}{
		{
			name: "Empty",
			in:   "  \n",
			want: nil,
		},
		{
			name: "Objects",
			in:   `[{"id":"web","text":"Web","icon":"globe","groups":["compose"]},{"id":"db"}]`,
			want: []*Service{
				{Key: "web", Text: "Web", Icon: "globe", Groups: []string{"compose"}},
				{Key: "db"},
			},
		},
		{
			name: "IDs",
			in:   `["web", "compose/db"]`,
			want: []*Service{
				{Key: "web"},
				{Key: "db", Groups: []string{"compose"}},
			},
		},
		{
			name: "Lines",
			in:   "web\n\n  prod / eu / api  \ndb\n",
			want: []*Service{
				{Key: "web"},
				{Key: "api", Groups: []string{"prod", "eu"}},
				{Key: "db"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOutput([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutput_Invalid(t *testing.T) {
	for _, in := range []string{`[oops`, `[{"text":"no id"}]`, `[1, 2]`} {
		_, err := parseOutput([]byte(in))
		assert.ErrorIs(t, err, ErrOutput, in)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Name: "c", Command: "true"}.Validate())
	assert.ErrorIs(t, Config{Command: "true"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Name: "c"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Name: "c", Command: "true", Poll: -1}.Validate(), ErrInvalidConfig)
}
