package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/go-imei-sync/internal/app"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/internal/profiles"
	"github.com/Guizzs26/go-imei-sync/internal/service"
)

// profilesCmd represents the profiles command
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage scheduled mailbox profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := loadProfiles()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMODE\tAT\tENABLED\tMAILBOX\tFILTER\tTODAY ONLY\tLAST RUN\tRECIPIENTS")
		for _, p := range book.List() {
			fmt.Fprintf(w, "%s\t%s\t%02d:%02d\t%t\t%s\t%s\t%t\t%s\t%s\n",
				p.Name, p.EffectiveMode(), p.Hour, p.Minute, p.Enabled, p.Mailbox,
				p.TitleFilter, p.TodayOnly, p.LastRun, strings.Join(p.Recipients, ","))
		}
		return w.Flush()
	},
}

var profilesAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := loadProfiles()
		if err != nil {
			return err
		}

		f := cmd.Flags()
		p := profiles.Profile{Name: args[0]}
		p.Mailbox, _ = f.GetString("mailbox")
		p.TitleFilter, _ = f.GetString("filter")
		p.TodayOnly, _ = f.GetBool("today-only")
		p.Hour, _ = f.GetInt("hour")
		p.Minute, _ = f.GetInt("minute")
		p.Recipients, _ = f.GetStringSlice("notify")
		disabled, _ := f.GetBool("disabled")
		p.Enabled = !disabled
		mode, _ := f.GetString("mode")
		p.Mode = profiles.Mode(mode)

		if err := book.Add(p); err != nil {
			return err
		}
		fmt.Printf("Profile %q saved\n", p.Name)
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := loadProfiles()
		if err != nil {
			return err
		}
		return book.Delete(args[0])
	},
}

var profilesRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Run a profile now, regardless of its schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		book, err := loadProfiles()
		if err != nil {
			return err
		}
		p, err := book.Get(args[0])
		if err != nil {
			return err
		}

		store, closeStore, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		var publisher service.EventPublisher
		if sender := app.NewSender(cfg, logger); sender != nil {
			publisher = directPublisher{service.NewNotifierService(sender, logger)}
		}
		runner := app.NewRunner(cfg, app.NewFileHandler(cfg, store, logger), publisher, logger)

		var res models.BatchResult
		err = withProgress(func(progress chan<- models.ProgressEvent) error {
			var rerr error
			res, rerr = runner.RunProfile(ctx, p, service.TriggerManual, progress)
			return rerr
		})
		fmt.Println()
		fmt.Println(res.Summary)
		return err
	},
}

// foldersCmd represents the folders command
var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List the mailboxes visible to MAIL_USER",
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher := app.NewFetcher(cfg, logger)
		if fetcher == nil {
			return fmt.Errorf("mail is not configured: set IMAP_HOST and MAIL_USER")
		}
		names, err := fetcher.Folders(cmd.Context())
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func loadProfiles() (*profiles.Store, error) {
	book := profiles.NewStore(cfg.ProfilesPath, logger)
	if err := book.Load(); err != nil {
		return nil, err
	}
	return book, nil
}

func init() {
	f := profilesAddCmd.Flags()
	f.String("mailbox", "INBOX", "Mailbox to search")
	f.String("filter", "", "Subject filter: groups split by ; , or |, tokens by spaces")
	f.Bool("today-only", true, "Only inspect messages received today")
	f.Int("hour", 8, "Hour of day to run (0-23)")
	f.Int("minute", 0, "Minute to run (0-59)")
	f.StringSlice("notify", nil, "Recipients of the run summary")
	f.String("mode", string(profiles.ModeIMEI), "imei or forms")
	f.Bool("disabled", false, "Create the profile disabled")

	profilesCmd.AddCommand(profilesListCmd, profilesAddCmd, profilesDeleteCmd, profilesRunCmd)
	rootCmd.AddCommand(profilesCmd, foldersCmd)
}
