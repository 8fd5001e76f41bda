package authorize

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeCommand(t *testing.T) {
	assert.Equal(t, "authorize", commandDefinition.Use)
	require.NotNil(t, commandDefinition.Flags().Lookup("auth-no-open-browser"))

	buf := &bytes.Buffer{}
	root := &cobra.Command{Use: "safearchive"}
	root.AddCommand(commandDefinition)
	root.SetOut(buf)
	root.SetArgs([]string{"authorize", "--help"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "--auth-no-open-browser")
	assert.Contains(t, buf.String(), "client_secrets_file")
}
