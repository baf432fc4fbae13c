package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCardValidate(t *testing.T) {
	out, err := run(t, "card", "validate", "3782 822463 10005", "--expiry", "12/30", "--cvv", "1234")

	require.NoError(t, err)
	assert.Contains(t, out, "VALID    true")
	assert.Contains(t, out, "NETWORK  amex")
	assert.Contains(t, out, "BIN      378282")
	assert.Contains(t, out, "LAST4    0005")

	out, err = run(t, "card", "validate", "4111111111111112", "--expiry", "12/30")
	require.NoError(t, err)
	assert.Contains(t, out, "VALID    false")
	assert.Contains(t, out, "14 (invalid_card)")

	_, err = run(t, "card", "validate", "4111111111111111")
	assert.Error(t, err)
}

func TestFees(t *testing.T) {
	out, err := run(t, "fees", "10000")

	require.NoError(t, err)
	assert.Contains(t, out, "transaction  320  9680")
	assert.Contains(t, out, "refund       50   9950")
	assert.Contains(t, out, "payout       100  9900")

	_, err = run(t, "fees", "0")
	assert.Error(t, err)
}

func TestParsePartitionOffset(t *testing.T) {
	p, o, err := parsePartitionOffset("3:1024")
	require.NoError(t, err)
	assert.Equal(t, int32(3), p)
	assert.Equal(t, int64(1024), o)

	for _, bad := range []string{"", "3", "x:1", "1:y", "-1:4"} {
		_, _, err := parsePartitionOffset(bad)
		assert.Error(t, err, bad)
	}
}
