package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/vrsandeep/mylist-go/internal/core"
	"github.com/vrsandeep/mylist-go/internal/jobs"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/refresh"
)

func main() {
	app, err := core.New()
	if err != nil {
		log.Fatal("Fatal error during application setup", "err", err)
	}
	defer app.Close()

	cmd := &cli.Command{
		Name:  "mylist-cli",
		Usage: "Manage and refresh tracked video lists",
		Commands: []*cli.Command{
			refreshCommand(app),
			listsCommand(app),
			addCommand(app),
			removeCommand(app),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal("Command failed", "err", err)
	}
}

func refreshCommand(app *core.App) *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "Refresh due lists, every list, or the given list URLs",
		ArgsUsage: "[list-url...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Refresh every list regardless of its check interval",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			orch := app.Orchestrator().WithProgress(refresh.ProgressFunc(
				func(phase refresh.Phase, listURL string, completed, total int) {
					log.Info("Progress", "phase", phase, "list", listURL, "done", completed, "total", total)
				}))

			var (
				report *refresh.Report
				err    error
			)
			switch {
			case cmd.Args().Len() > 0:
				report, err = orch.RunLists(ctx, cmd.Args().Slice())
			case cmd.Bool("all"):
				report, err = orch.Run(ctx, refresh.ModeFull)
			default:
				report, err = orch.Run(ctx, refresh.ModeDue)
			}
			if err != nil {
				return err
			}

			for _, lr := range report.Lists {
				if lr.Error != "" {
					log.Warn("List failed", "list", lr.URL, "strategy", lr.Strategy, "err", lr.Error)
					continue
				}
				log.Info("List refreshed", "list", lr.URL, "strategy", lr.Strategy, "fetched", lr.Fetched, "new", lr.Inserted)
			}
			fmt.Println(jobs.SummaryMessage(report))
			return nil
		},
	}
}

func listsCommand(app *core.App) *cli.Command {
	return &cli.Command{
		Name:  "lists",
		Usage: "Show tracked lists",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			lists, err := app.Store().GetAllLists()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tINTERVAL\tLAST CHECKED\tFAILURES\tUNREAD")
			for _, l := range lists {
				checked := "never"
				if l.LastCheckedAt != nil {
					checked = l.LastCheckedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\n",
					l.ID, l.DisplayName, l.CheckInterval, checked, l.ConsecutiveCheckFailures, l.HasUnread)
			}
			return w.Flush()
		},
	}
}

func addCommand(app *core.App) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Start tracking a list",
		ArgsUsage: "<list-url or site path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "interval", Usage: "Check interval, e.g. 15分 or 1h"},
			&cli.StringFlag{Name: "owner", Usage: "Owner name shown until the first refresh"},
			&cli.StringFlag{Name: "name", Usage: "Collection name shown until the first refresh"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one list url")
			}
			listURL, err := models.ResolveListURL(app.Config().Site.BaseURL, cmd.Args().First())
			if err != nil {
				return err
			}
			list, err := app.Store().CreateList(&models.TrackedList{
				URL:            listURL,
				OwnerName:      cmd.String("owner"),
				CollectionName: cmd.String("name"),
				CheckInterval:  cmd.String("interval"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Tracking list %d: %s\n", list.ID, list.DisplayName)
			return nil
		},
	}
}

func removeCommand(app *core.App) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Stop tracking a list and drop its videos",
		ArgsUsage: "<list-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid list id %q", cmd.Args().First())
			}
			return app.Store().DeleteList(id)
		},
	}
}
