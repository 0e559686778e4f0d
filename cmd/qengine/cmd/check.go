package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/qengine/internal/rules"
)

var checkSave bool

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Validate definition documents and print their cost",
	Long: `check compiles each definition (YAML, JSON or msgpack by extension) and
reports its condition and estimated cost. With --save, valid definitions are
stored in the definitions database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkSave, "save", false, "store valid definitions in the definitions database")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng := rules.NewEngine(rules.WithLimits(cfg.Limits))
	out := cmd.OutOrStdout()

	var failed int
	for _, path := range args {
		def, err := readDefinition(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}
		q, dynamic, err := rules.CompileDynamic(eng, def)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}

		typeName := def.Type
		if typeName == "" {
			typeName = "document"
		}
		if dynamic {
			typeName += " (unregistered, checked as document)"
		}
		fmt.Fprintf(out, "%s: ok\n", path)
		fmt.Fprintf(out, "  query:      %s\n", q.Name())
		fmt.Fprintf(out, "  type:       %s\n", typeName)
		fmt.Fprintf(out, "  parameters: %s\n", formatParams(q.Parameters()))
		fmt.Fprintf(out, "  cost:       %d\n", q.Cost())
		fmt.Fprintf(out, "  condition:  %s\n", q.Condition())

		if checkSave {
			st, database, err := openStore(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			err = st.SaveQuery(ctx, def)
			database.Close()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  saved:      %s\n", def.Name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failed, len(args))
	}
	return nil
}

func formatParams(p map[string]string) string {
	if len(p) == 0 {
		return "-"
	}
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + p[name]
	}
	return strings.Join(parts, ", ")
}
