package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solrelay/pkg/testutil"
)

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "fee-payer"}, names)
}

func TestFeePayerCommand(t *testing.T) {
	testutil.Given(t, "a configured secret", func(t *testing.T) {
		key := testutil.NewKeypair(t)
		t.Setenv("FEEPAYER_SECRET_KEY_BASE58", key.String())

		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetArgs([]string{"fee-payer"})
		require.NoError(t, root.Execute())
		assert.Equal(t, key.PublicKey().String()+"\n", out.String())
	})

	testutil.Given(t, "no secret", func(t *testing.T) {
		t.Setenv("FEEPAYER_SECRET_KEY_BASE58", "")
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"fee-payer"})
		assert.ErrorContains(t, root.Execute(), "not set")
	})
}
