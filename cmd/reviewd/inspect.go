package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/index"
	"github.com/heimdex/heimdex-review/internal/query"
	"github.com/heimdex/heimdex-review/internal/review"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects and their games",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			reqCtx := cmd.Context()
			projects, err := s.repo.ListProjects(reqCtx)
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}
			current, _ := catalog.NewConfigProjectContext(s.repo, s.logger).CurrentProjectID(reqCtx)

			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects")
				return nil
			}

			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				games, err := s.repo.ListGames(reqCtx, p.ID)
				if err != nil {
					return fmt.Errorf("list games for %s: %w", p.ID, err)
				}
				rows = append(rows, []string{
					p.ID,
					p.Name,
					strconv.Itoa(len(games)),
					yesNo(p.ID == current),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Games", "Open"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				shouldColorize(out),
			))
			return nil
		},
	}
}

func newMomentsCommand(ctx *commandContext) *cobra.Command {
	var sortKey string
	var descending bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "moments",
		Short: "List the moments of the loaded game",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := query.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			return ctx.withReview(cmd.Context(), func(svc *review.Service) error {
				// Header clicks: a new key lands ascending, a second click flips it.
				want := query.MomentSort{Key: key, Descending: descending}
				for svc.Sort() != want {
					svc.SelectSort(key)
				}
				rows := svc.Moments()
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, rows)
				}
				printMoments(out, svc.Snapshot(), rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortKey, "sort", string(query.SortByStart), "Sort key: category, start, duration or notes")
	cmd.Flags().BoolVar(&descending, "desc", false, "Sort descending")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write JSON instead of a table")
	return cmd
}

func printMoments(out io.Writer, snap *index.Snapshot, rows []review.MomentRow) {
	if snap.GameID == "" {
		fmt.Fprintln(out, "No game loaded")
		return
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No moments")
		return
	}

	table := make([][]string, 0, len(rows))
	for _, m := range rows {
		duration := "open"
		if m.DurationMs != nil {
			duration = index.FormatTimestamp(*m.DurationMs)
		}
		notes := ""
		if m.Notes != nil {
			notes = truncateCell(*m.Notes, 40)
		}
		table = append(table, []string{
			m.ID,
			m.Category,
			index.FormatTimestamp(m.StartMs),
			duration,
			strconv.Itoa(m.AnnotationCount),
			notes,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Category", "Start", "Duration", "Notes #", "Notes"},
		table,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		shouldColorize(out),
	))
}

func newAnnotationsCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var momentID string
	var text string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "annotations",
		Short: "List reconciled annotations of the open project",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter query.Filter
			if kind != "" {
				k, err := catalog.ParseAttachmentKind(kind)
				if err != nil {
					return err
				}
				filter.Kind = k
			}
			filter.MomentID = momentID
			filter.Text = text

			return ctx.withReview(cmd.Context(), func(svc *review.Service) error {
				rows := svc.Annotations(filter)
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, rows)
				}
				printAnnotations(out, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only annotations attached to a moment, layer or player")
	cmd.Flags().StringVar(&momentID, "moment", "", "Only annotations of this moment")
	cmd.Flags().StringVar(&text, "text", "", "Case-insensitive content filter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write JSON instead of a table")
	return cmd
}

func printAnnotations(out io.Writer, rows []review.AnnotationRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No annotations")
		return
	}

	table := make([][]string, 0, len(rows))
	for _, a := range rows {
		table = append(table, []string{
			a.ID,
			string(a.Origin.Kind),
			a.MomentLabel,
			truncateCell(a.Content, 60),
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Origin", "Moment", "Content", "Created"},
		table,
		nil,
		shouldColorize(out),
	))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
