package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pdbtomrc/pkg/config"
)

func TestParse_AllParameters(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	opts, shouldExit, err := Parse([]string{"-i", "model.pdb", "-a", "0.65", "-b", "512"}, out)

	require.NoError(t, err)
	require.False(t, shouldExit)
	require.Equal(t, "model.pdb", opts.InputModel)
	require.Equal(t, "0.65", opts.PixelSize, "pixel size must be kept as typed")
	require.Equal(t, 512, opts.BoxSize)
	require.Equal(t, config.DefaultPath, opts.ConfigPath)
	require.False(t, opts.Strict)
	require.Empty(t, out.String())
}

func TestParse_MissingValuesPassThrough(t *testing.T) {
	t.Parallel()

	opts, shouldExit, err := Parse(nil, &bytes.Buffer{})

	require.NoError(t, err, "missing parameters are not an argument error")
	require.False(t, shouldExit)
	require.Empty(t, opts.InputModel)
	require.Empty(t, opts.PixelSize)
	require.Zero(t, opts.BoxSize)
}

func TestParse_UnknownFlag(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]string{"-i", "model.pdb", "-x", "1"}, &bytes.Buffer{})

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Equal(t, "Unexpected option -x", exitErr.Message)
}

func TestParse_StrayArgument(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]string{"-i", "model.pdb", "extra"}, &bytes.Buffer{})

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, "Unexpected option extra", exitErr.Message)
}

func TestParse_MalformedBox(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]string{"-b", "big"}, &bytes.Buffer{})

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, exitErr.Message, "invalid box size")
}

func TestParse_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	opts, shouldExit, err := Parse([]string{"-h"}, out)

	require.NoError(t, err)
	require.True(t, shouldExit)
	require.Nil(t, opts)
	require.Contains(t, out.String(), "Usage:")
	require.Contains(t, out.String(), "-strict")
}

func TestParse_Extensions(t *testing.T) {
	t.Parallel()

	opts, _, err := Parse([]string{
		"-i", "m.pdb", "-a", "1.2", "-b", "64",
		"-config", "custom.yaml", "-strict", "-preview", "previews",
	}, &bytes.Buffer{})

	require.NoError(t, err)
	require.Equal(t, "custom.yaml", opts.ConfigPath)
	require.True(t, opts.Strict)
	require.Equal(t, "previews", opts.PreviewDir)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Options{InputModel: "m.pdb", PixelSize: "0.65", BoxSize: 512}
	require.NoError(t, valid.Validate())

	cases := map[string]Options{
		"missing model":   {PixelSize: "0.65", BoxSize: 512},
		"bad pixel size":  {InputModel: "m.pdb", PixelSize: "abc", BoxSize: 512},
		"zero pixel size": {InputModel: "m.pdb", PixelSize: "0", BoxSize: 512},
		"zero box":        {InputModel: "m.pdb", PixelSize: "0.65"},
	}
	for name, opts := range cases {
		err := opts.Validate()
		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr), name)
		require.Equal(t, 2, exitErr.Code, name)
	}
}
