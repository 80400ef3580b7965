package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersJobs(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"generate-invoices", "send-reminders", "regenerate-billing", "change-rate"} {
		assert.True(t, names[want], want)
	}
}

func TestChangeRate_RejectsInvalidAmount(t *testing.T) {
	require.NoError(t, changeRateCmd.Flags().Set("amount", "twelve"))
	t.Cleanup(func() { _ = changeRateCmd.Flags().Set("amount", "") })

	err := runChangeRate(changeRateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --amount "twelve"`)
}

func TestFinish_FailsOnUnsuccessfulResult(t *testing.T) {
	var out bytes.Buffer
	generateCmd.SetOut(&out)
	t.Cleanup(func() { generateCmd.SetOut(nil) })

	err := finish(generateCmd, map[string]any{"success": false}, false)
	assert.ErrorIs(t, err, errJobFailed)
	assert.Contains(t, out.String(), `"success": false`)

	out.Reset()
	assert.NoError(t, finish(generateCmd, map[string]any{"success": true}, true))
}
