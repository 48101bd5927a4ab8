package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
	"github.com/spf13/cobra"
)

func MonitorsCmd() *cobra.Command {
	var projectID uint

	cmd := &cobra.Command{
		Use:   "monitors",
		Short: "List monitors and their current status",
		Long: `Lists monitors with their status and check-in deadlines.

Examples:
  monocle monitors              # every project
  monocle monitors --project 3  # one project`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			query := db.DB.Order("project_id").Order("id")
			if projectID != 0 {
				query = query.Where("project_id = ?", projectID)
			}

			var monitors []models.Monitor
			if err := query.Find(&monitors).Error; err != nil {
				return err
			}

			printMonitors(cmd.OutOrStdout(), monitors)
			return nil
		},
	}

	cmd.Flags().UintVar(&projectID, "project", 0, "Only list monitors of this project")

	return cmd
}

func printMonitors(w io.Writer, monitors []models.Monitor) {
	if len(monitors) == 0 {
		fmt.Fprintln(w, "No monitors")
		return
	}

	fmt.Fprintf(w, "%-36s  %-7s  %-24s  %-8s  %-20s  %s\n", "ID", "PROJECT", "NAME", "STATUS", "LAST CHECK-IN", "NEXT CHECK-IN")

	for _, m := range monitors {
		fmt.Fprintf(w, "%-36s  %-7d  %-24s  %s  %-20s  %s\n",
			m.GUID, m.ProjectID, truncate(m.Name, 24), statusLabel(m.Status), formatTime(m.LastCheckin), formatTime(m.NextCheckin))
	}
}

func statusLabel(status types.MonitorStatus) string {
	label := fmt.Sprintf("%-8s", status)

	switch status {
	case types.MonitorStatusOK:
		return color.New(color.FgGreen).Sprint(label)
	case types.MonitorStatusError:
		return color.New(color.FgRed).Sprint(label)
	case types.MonitorStatusDisabled:
		return color.New(color.FgHiBlack).Sprint(label)
	default:
		return color.New(color.FgYellow).Sprint(label)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
