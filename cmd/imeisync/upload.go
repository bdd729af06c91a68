package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/go-imei-sync/internal/app"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/reconcile"
	"github.com/Guizzs26/go-imei-sync/internal/service"
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Reconcile local workbooks against the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		forms, _ := cmd.Flags().GetBool("forms")
		notify, _ := cmd.Flags().GetStringSlice("notify")
		ctx := cmd.Context()

		store, closeStore, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		var publisher service.EventPublisher
		if len(notify) > 0 {
			sender := app.NewSender(cfg, logger)
			if sender == nil {
				return fmt.Errorf("--notify needs SMTP_HOST")
			}
			publisher = directPublisher{service.NewNotifierService(sender, logger)}
		}

		runner := app.NewRunner(cfg, app.NewFileHandler(cfg, store, logger), publisher, logger)

		var res models.BatchResult
		err = withProgress(func(progress chan<- models.ProgressEvent) error {
			var rerr error
			res, rerr = runner.Upload(ctx, service.UploadRequest{Files: args, Forms: forms, Recipients: notify}, progress)
			return rerr
		})
		fmt.Println()
		fmt.Println(res.Summary)
		return err
	},
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Classify a workbook against the store without writing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, closeStore, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		r, err := app.NewFileHandler(cfg, store, logger).Analyze(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println("Dry run: nothing was written")
		fmt.Print(reconcile.RenderText(r, cfg.ReportExamples))
		return nil
	},
}

// directPublisher mails run events in-process instead of going through the broker
type directPublisher struct {
	notifier *service.NotifierService
}

func (d directPublisher) PublishRunEvent(ctx context.Context, ev models.RunEvent) error {
	return d.notifier.HandleRunEvent(ctx, ev)
}

func init() {
	uploadCmd.Flags().Bool("forms", false, "Treat the workbooks as form exports and append them to FORMS_TABLE")
	uploadCmd.Flags().StringSlice("notify", nil, "Email the summary and xlsx report to these addresses")
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(analyzeCmd)
}
