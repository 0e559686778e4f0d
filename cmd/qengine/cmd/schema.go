package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/qengine/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema FILE",
	Short: "Print the flattened field paths of a sample document",
	Long: `schema lists every path a field operand can address in the JSON or YAML
sample, with the data type inferred from its values. A top-level list is
merged into one schema.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tTYPE")
	for _, e := range schema.Describe(doc) {
		fmt.Fprintf(w, "%s\t%s\n", e.Path, e.Type)
	}
	return w.Flush()
}
