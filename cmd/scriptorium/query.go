package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewtec/scriptorium/annotation"
)

func PrintQuery(ctx context.Context, w io.Writer, db *sql.Tx, query string, args ...interface{}) error {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	result, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return err
	}
	defer result.Close()
	columns, err := result.Columns()
	if err != nil {
		return err
	}
	if len(columns) > 1 {
		fmt.Fprintln(w, strings.Join(columns, "\t"))
	}
	pointers := make([]interface{}, len(columns))
	container := make([]sql.NullString, len(columns))
	for i := 0; i < len(columns); i++ {
		pointers[i] = &container[i]
	}
	row := make([]string, len(columns))
	for result.Next() {
		if err := result.Scan(pointers...); err != nil {
			return err
		}
		for i, v := range container {
			row[i] = v.String
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return result.Err()
}

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [image]",
	Short: "Queries the annotation database",
	Long: `Without arguments, list the images with their annotation counts. With an
image identifier or filename, list its annotations.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := annotation.GetDatabase(config.Server.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		tx, err := db.BeginTx(cmd.Context(), &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer tx.Rollback()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			return PrintQuery(cmd.Context(), out, tx, `
select i.id, i.filename, i.width, i.height, count(a.id) annotations
from images i left join annotations a on a.image_id = i.id
group by i.id order by i.filename`)
		}

		query := `
select a.id, a.geometry, coalesce(c.name, '') classification, a.hand, a.body
from annotations a
join images i on i.id = a.image_id
left join classifications c on c.id = a.classification
where (i.id = ? or i.filename = ?)`
		queryArgs := []interface{}{args[0], args[0]}
		if class, _ := cmd.Flags().GetString("classification"); class != "" {
			query += " and (c.name = ? or a.classification = ?)"
			queryArgs = append(queryArgs, class, class)
		}
		query += " order by a.id"
		return PrintQuery(cmd.Context(), out, tx, query, queryArgs...)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().String("classification", "", "Only annotations of this classification (name or id)")
}
