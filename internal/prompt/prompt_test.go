package prompt

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadSecretLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
		err   error
	}{
		{"line", "secret-extended-key\nrest\n", "secret-extended-key", nil},
		{"no newline", "  key  ", "key", nil},
		{"empty line", "\nkey\n", "", ErrEmptySecret},
		{"empty input", "", "", ErrEmptySecret},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			r := bufio.NewReader(strings.NewReader(test.input))
			got, err := readSecretLine(r)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, string(got))
		})
	}
}

func TestConfirm(t *testing.T) {
	promptOut = io.Discard

	tests := []struct {
		input string
		def   string
		want  bool
	}{
		{"y\n", "no", true},
		{"YES\n", "no", true},
		{"\n", "no", false},
		{"\n", "yes", true},
		{"maybe\nn\n", "yes", false},
		{"yes", "no", true},
	}
	for _, test := range tests {
		r := bufio.NewReader(strings.NewReader(test.input))
		got, err := Confirm(r, "Overwrite?", test.def)
		require.NoError(t, err, test.input)
		require.Equal(t, test.want, got, test.input)
	}

	_, err := Confirm(bufio.NewReader(strings.NewReader("")), "?", "")
	require.ErrorIs(t, err, io.EOF)
}
