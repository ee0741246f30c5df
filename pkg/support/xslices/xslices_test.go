package xslices

import (
	"flag"
	"io"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, func(v int) string { return strconv.Itoa(v * 10) })
	assert.Equal(t, []string{"10", "20", "30"}, got)
	assert.Empty(t, Map([]int(nil), func(v int) int { return v }))
}

func TestFlag(t *testing.T) {
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	values := FlagVar(flagSet, "value", []string{"default"}, "repeated value", func(s string) (string, error) {
		if s == "bad" {
			return "", errors.New("bad value")
		}
		return s, nil
	})
	require.Equal(t, []string{"default"}, *values)
	require.NoError(t, flagSet.Parse([]string{"-value", "float64[2]=1,2", "-value", "int64"}))
	require.Equal(t, []string{"float64[2]=1,2", "int64"}, *values)
	require.Equal(t, "float64[2]=1,2 int64", flagSet.Lookup("value").Value.String())

	flagSet = flag.NewFlagSet("test", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	ints := FlagVar(flagSet, "n", nil, "ints", strconv.Atoi)
	require.Error(t, flagSet.Parse([]string{"-n", "x"}))
	require.Empty(t, *ints)
}
