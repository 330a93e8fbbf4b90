package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/enrollmail/app"
	"github.com/kilianp07/enrollmail/config"
	"github.com/kilianp07/enrollmail/infra/logger"
)

var (
	cfgPath      string
	contactsFile string
)

var rootCmd = &cobra.Command{
	Use:   "enrollmail",
	Short: "Medicare enrollment email scheduler",
	Long: "enrollmail computes which enrollment emails each contact should receive and when.\n" +
		"Without a subcommand it serves the HTTP API and runs the recurring batch job.",
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&contactsFile, "contacts-file", "", "read contacts from a JSON or YAML file instead of the configured store")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath, func(c *config.Config) {
		if contactsFile != "" {
			c.Store.Backend = "file"
			c.Store.File = contactsFile
		}
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newService(opts ...app.Option) (*app.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, opts...)
}

func closeService(svc *app.Service) {
	if err := svc.Close(); err != nil {
		logger.New("main").Errorf("service close: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)
	return svc.Run(ctx)
}
