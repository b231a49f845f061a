package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nova-ide/nova-install/schema"
)

// SchemaCommand represents the schema command
var SchemaCommand = &cobra.Command{
	Use:   "schema",
	Short: "Display the installed metadata schema",
	Long: `Display the JSON schema of the metadata file written next to every
installed binary (<binary>.json).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return RunSchema(format, cmd.OutOrStdout())
	},
}

// RunSchema executes the schema command with the given parameters
func RunSchema(format string, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}

	var jsonSchema interface{}
	if err := json.Unmarshal(schema.GetMetadataSchemaRaw(), &jsonSchema); err != nil {
		return fmt.Errorf("failed to parse JSON schema: %w", err)
	}

	outputBytes, err := encodeOutput(jsonSchema, format)
	if err != nil {
		return fmt.Errorf("failed to convert to %s: %w", format, err)
	}

	_, err = w.Write(outputBytes)
	return err
}

func init() {
	SchemaCommand.Flags().StringP("format", "f", "yaml", "Output format (yaml, json)")
}
