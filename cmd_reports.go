package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"inspection-chat/models"
	"inspection-chat/report"
	"inspection-chat/workflows"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newReportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Manage archived inspection reports",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ar, err := a.requireArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer ar.Close()

			reports, err := ar.workflows.ListReports(cmd.Context())
			if err != nil {
				return err
			}
			return writeReportList(cmd.OutOrStdout(), reports)
		},
	})

	var raw bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Render an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.loadArchivedReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				_, err := fmt.Fprintln(out, body)
				return err
			}
			rendered, err := report.Render(body, terminalWidth(out))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(out, rendered)
			return err
		},
	}
	show.Flags().BoolVar(&raw, "raw", false, "print the markdown without rendering")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid report ID: %w", err)
			}
			ar, err := a.requireArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer ar.Close()

			deleted, err := ar.workflows.DeleteReport(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !deleted {
				return workflows.ErrReportNotFound
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Report deleted")
			return nil
		},
	})
	return cmd
}

func (a *app) loadArchivedReport(ctx context.Context, rawID string) (string, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", fmt.Errorf("invalid report ID: %w", err)
	}
	ar, err := a.requireArchive(ctx)
	if err != nil {
		return "", err
	}
	defer ar.Close()

	r, err := ar.workflows.GetReport(ctx, id)
	if errors.Is(err, workflows.ErrReportNotFound) {
		return "", fmt.Errorf("%w: %s", err, id)
	}
	if err != nil {
		return "", err
	}
	return r.Body, nil
}

func writeReportList(out io.Writer, reports []models.ArchivedReport) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(out, "No archived reports.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tCATEGORIES")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), strings.Join(r.Categories, ", "))
	}
	return tw.Flush()
}
