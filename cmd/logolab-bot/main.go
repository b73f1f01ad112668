package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/logolab/internal/config"
	"github.com/MarcoPoloResearchLab/logolab/internal/database"
	"github.com/MarcoPoloResearchLab/logolab/internal/logging"
	"github.com/MarcoPoloResearchLab/logolab/internal/scheduler"
	"github.com/MarcoPoloResearchLab/logolab/internal/server"
	"github.com/MarcoPoloResearchLab/logolab/internal/slack"
	"github.com/MarcoPoloResearchLab/logolab/internal/workflow"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "logolab-bot",
		Short: "LogoLab submission and voting bot",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("review-channel", defaults.GetString("channel.review"), "Moderation review channel id")
	cmd.PersistentFlags().String("voting-channel", defaults.GetString("channel.voting"), "Public voting channel id")
	cmd.PersistentFlags().Int("voting-interval-days", defaults.GetInt("voting.interval_days"), "Voting broadcast interval in days")
	cmd.PersistentFlags().String("admin-user-id", defaults.GetString("admin.user_id"), "Platform id auto-promoted to moderator")
	cmd.PersistentFlags().String("bot-token", "", "Bot token (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Request signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "channel.review", "review-channel")
	bindFlag(cmd, "channel.voting", "voting-channel")
	bindFlag(cmd, "voting.interval_days", "voting-interval-days")
	bindFlag(cmd, "admin.user_id", "admin-user-id")
	bindFlag(cmd, "slack.bot_token", "bot-token")
	bindFlag(cmd, "slack.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	notifier, err := slack.NewClient(slack.ClientConfig{
		BotToken: appConfig.BotToken,
		BaseURL:  appConfig.SlackAPIBaseURL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	workflowService, err := workflow.NewService(workflow.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: workflow.NewUUIDProvider(),
		Notifier:   notifier,
		Channels: workflow.Channels{
			Review: appConfig.ReviewChannelID,
			Voting: appConfig.VotingChannelID,
		},
		AdminUserID: appConfig.AdminUserID,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	verifier, err := slack.NewSignatureVerifier(slack.SignatureVerifierConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Workflow:        workflowService,
		Verifier:        verifier,
		TimestampHeader: slack.TimestampHeader,
		SignatureHeader: slack.SignatureHeader,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	votingScheduler, err := scheduler.New(scheduler.Config{
		Interval:    time.Duration(appConfig.VotingIntervalDays) * 24 * time.Hour,
		Broadcaster: workflowService,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	votingScheduler.Start(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		votingScheduler.Wait()
		return err
	case err := <-errCh:
		return err
	}
}
