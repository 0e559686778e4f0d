package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/qengine/internal/core/store"
	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/refdata"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and edit the definitions database",
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored queries, parameters and external lists",
	RunE:  runStoreList,
}

var (
	paramType        string
	paramDefault     string
	paramStatic      bool
	paramDescription string
)

var storeParamCmd = &cobra.Command{
	Use:   "parameter NAME",
	Short: "Create or replace a parameter definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreParameter,
}

var (
	listType       string
	listConnection string
	listKind       string
	listQuery      string
	listNoCache    bool
	listTTL        time.Duration
	listCapacity   int
)

var storeListSourceCmd = &cobra.Command{
	Use:   "external-list NAME",
	Short: "Create or replace an external reference list",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreExternalList,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd, storeParamCmd, storeListSourceCmd)

	storeParamCmd.Flags().StringVar(&paramType, "type", "string", "data type")
	storeParamCmd.Flags().StringVar(&paramDefault, "default", "", "default value")
	storeParamCmd.Flags().BoolVar(&paramStatic, "static", false, "reject per-request overrides")
	storeParamCmd.Flags().StringVar(&paramDescription, "description", "", "description")

	storeListSourceCmd.Flags().StringVar(&listType, "type", "string", "element data type")
	storeListSourceCmd.Flags().StringVar(&listConnection, "connection", "", "connection name (required)")
	storeListSourceCmd.Flags().StringVar(&listKind, "kind", "sql", "connection kind (sql, pgx)")
	storeListSourceCmd.Flags().StringVar(&listQuery, "query", "", "single-column query (required)")
	storeListSourceCmd.Flags().BoolVar(&listNoCache, "no-cache", false, "fetch on every use")
	storeListSourceCmd.Flags().DurationVar(&listTTL, "ttl", 0, "cache lifetime (0 uses refdata.default_timeout)")
	storeListSourceCmd.Flags().IntVar(&listCapacity, "capacity", 0, "longest list that is cached (0 means no bound)")
	storeListSourceCmd.MarkFlagRequired("connection")
	storeListSourceCmd.MarkFlagRequired("query")
}

func withStore(cmd *cobra.Command, fn func(*store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, database, err := openStore(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(st)
}

func runStoreList(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(st *store.Store) error {
		ctx := cmd.Context()
		queries, err := st.ListQueries(ctx)
		if err != nil {
			return err
		}
		params, err := st.ListParameters(ctx)
		if err != nil {
			return err
		}
		lists, err := st.ListExternalLists(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tNAME\tDETAIL")
		for _, q := range queries {
			fmt.Fprintf(w, "query\t%s\ttype=%s updated=%s\n", q.Name, q.TypeName, q.Updated().UTC().Format(time.RFC3339))
		}
		for _, p := range params {
			fmt.Fprintf(w, "parameter\t%s\ttype=%s dynamic=%t default=%q\n", p.Name, p.DataType, p.Dynamic, p.Default)
		}
		for _, l := range lists {
			fmt.Fprintf(w, "external-list\t%s\ttype=%s source=%s@%s cacheable=%t\n", l.Name, l.Elem, l.Connection, l.Kind, l.Cacheable)
		}
		return w.Flush()
	})
}

func runStoreParameter(cmd *cobra.Command, args []string) error {
	dt, err := datatype.ParseBasic(paramType)
	if err != nil {
		return err
	}
	return withStore(cmd, func(st *store.Store) error {
		return st.SaveParameter(cmd.Context(), store.Parameter{
			Name:        args[0],
			DataType:    dt,
			Dynamic:     !paramStatic,
			Default:     paramDefault,
			Description: paramDescription,
		})
	})
}

func runStoreExternalList(cmd *cobra.Command, args []string) error {
	elem, err := datatype.ParseBasic(listType)
	if err != nil {
		return err
	}
	return withStore(cmd, func(st *store.Store) error {
		return st.SaveExternalList(cmd.Context(), refdata.ExternalList{
			Name:          args[0],
			Elem:          elem,
			Connection:    listConnection,
			Kind:          listKind,
			Query:         listQuery,
			Cacheable:     !listNoCache,
			CacheTimeout:  listTTL,
			CacheCapacity: listCapacity,
		})
	})
}
