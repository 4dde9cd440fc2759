package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tip-dispatcher/internal/app"
	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/usecase/jobs"
	"tip-dispatcher/internal/usecase/schedule"
	"tip-dispatcher/internal/usecase/seed"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции схемы",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Printf("Миграции применены (%s)\n", cfg.Storage.Driver)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Загрузить каналы, советы и распространителей из YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		f, err := seed.Parse(file)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		rep, err := seed.Apply(cmd.Context(), store, f)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(rep)
		}
		fmt.Printf("Каналов: %d, советов: %d, назначений: %d, распространителей: %d\n",
			rep.Channels, rep.Tips, rep.Assignments, rep.Distributors)
		return nil
	},
}

var previewCount int

var previewCmd = &cobra.Command{
	Use:   "preview <channel>",
	Short: "Показать следующую выборку советов канала без отправки",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if previewCount < 1 {
			return fmt.Errorf("--count должен быть не меньше 1")
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		ch, err := resolveChannel(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		selector, _ := app.Services(store, nil)
		tips, assigns, err := selector.TakeTips(cmd.Context(), ch.ID, previewCount)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"channel": ch.Name, "tips": tips, "assignments": assigns})
		}
		if len(tips) == 0 {
			fmt.Printf("У канала %s нет доступных советов\n", ch.Name)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ASSIGNMENT\tTIP\tTITLE")
		for i, t := range tips {
			fmt.Fprintf(w, "%d\t%d\t%s\n", assigns[i].ID, t.ID, t.Title)
		}
		return w.Flush()
	},
}

// resolveChannel ищет канал по id или имени.
func resolveChannel(ctx context.Context, store domain.ChannelRepo, ref string) (domain.Channel, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return store.GetChannel(ctx, id)
	}
	ch, err := store.GetChannelByName(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Channel{}, fmt.Errorf("канал %q: %w", ref, err)
	}
	return ch, err
}

var distributeCmd = &cobra.Command{
	Use:   "distribute <distributor-id>",
	Short: "Запустить распространителя один раз",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("некорректный id %q", args[0])
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		client, err := app.Redis(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if client != nil {
			defer client.Close()
		}
		registry, err := app.Dispatchers(cfg, logger)
		if err != nil {
			return err
		}
		_, distributor := app.Services(store, registry)
		runner := jobs.NewRunner(distributor, app.Cache(client), cfg.Scheduler.LeaseTTL, logger, "tipctl")

		out, runErr := runner.Run(cmd.Context(), id, domain.JobCauseManual)
		if jsonOutput {
			if err := printJSON(map[string]any{
				"distributor_id": out.DistributorID,
				"state":          out.State,
				"dispatched":     out.Dispatched,
				"assignment_ids": out.AssignmentIDs(),
				"tip_ids":        out.TipIDs(),
			}); err != nil {
				return err
			}
			return runErr
		}
		if runErr != nil {
			return runErr
		}
		fmt.Printf("Распространитель %d: %s, советов отправлено: %d\n", id, out.State, len(out.Tips))
		return nil
	},
}

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Проверить расписания и показать ближайшие срабатывания",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		items, err := store.ListDistributors(cmd.Context())
		if err != nil {
			return err
		}
		rows := scheduleRows(items, time.Now().In(cfg.Location()))
		if jsonOutput {
			return printJSON(rows)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCHANNEL\tTYPE\tSPEC\tNEXT")
		invalid := 0
		for _, r := range rows {
			next := r.Next
			if r.Error != "" {
				next = "ошибка: " + r.Error
				invalid++
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", r.ID, r.ChannelID, r.Type, r.Spec, next)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if invalid > 0 {
			return fmt.Errorf("некорректных расписаний: %d", invalid)
		}
		return nil
	},
}

type scheduleRow struct {
	ID        int64  `json:"id"`
	ChannelID int64  `json:"channel_id"`
	Type      string `json:"type"`
	Spec      string `json:"spec"`
	Next      string `json:"next,omitempty"`
	Error     string `json:"error,omitempty"`
}

func scheduleRows(items []domain.Distributor, now time.Time) []scheduleRow {
	rows := make([]scheduleRow, 0, len(items))
	for _, d := range items {
		row := scheduleRow{ID: d.ID, ChannelID: d.ChannelID, Type: string(d.Type)}
		if d.ScheduleErr != nil {
			row.Error = d.ScheduleErr.Error()
			rows = append(rows, row)
			continue
		}
		row.Spec = d.Schedule.CronSpec()
		sched, err := schedule.ParseSpec(d.Schedule)
		switch {
		case err != nil:
			row.Error = err.Error()
		default:
			if err := d.Validate(); err != nil {
				row.Error = err.Error()
			} else {
				row.Next = sched.Next(now).Format(time.RFC3339)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func init() {
	previewCmd.Flags().IntVarP(&previewCount, "count", "n", 3, "сколько советов выбрать")
}
