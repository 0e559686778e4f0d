package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/qengine/internal/rules"
	"github.com/solatis/qengine/internal/types"
)

var (
	evalData   string
	evalQuery  string
	evalParams []string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [FILE]",
	Short: "Evaluate a definition against JSON or YAML documents",
	Long: `evaluate runs a definition file, or a stored query named with --query,
against the documents in --data. A top-level list is a batch; one result is
printed per document.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evalData, "data", "", "JSON or YAML document file (required)")
	evaluateCmd.Flags().StringVar(&evalQuery, "query", "", "stored query name instead of FILE")
	evaluateCmd.Flags().StringArrayVar(&evalParams, "param", nil, "parameter override name=value (repeatable)")
	evaluateCmd.MarkFlagRequired("data")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if (len(args) == 1) == (evalQuery != "") {
		return fmt.Errorf("pass either a definition FILE or --query")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := parseParams(evalParams)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg, evalQuery != "")
	if err != nil {
		return err
	}
	defer rt.Close()

	var def *types.Definition
	if evalQuery != "" {
		def, err = rt.store.LoadQuery(ctx, evalQuery)
	} else {
		def, err = readDefinition(args[0])
	}
	if err != nil {
		return err
	}

	q, _, err := rules.CompileDynamic(rt.engine, def)
	if err != nil {
		return err
	}

	doc, err := readDocument(evalData)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, d := range documents(doc) {
		ok, err := q.EvaluateWith(ctx, rt.engine, d, params)
		if err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		fmt.Fprintf(out, "%d\t%t\n", i, ok)
	}
	return nil
}
