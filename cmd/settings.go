package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"interview-copilot/internal/store"
)

var errNoDatabase = errors.New("DATABASE_URL is not set; settings live in memory of the running agent")

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change stored settings",
	RunE:  listSettings,
}

var setSettingCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store a setting",
	Args:  cobra.ExactArgs(2),
	RunE:  setSetting,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [SESSION_ID]",
	Short: "List capture sessions, or the questions answered in one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listSessions,
}

func init() {
	settingsCmd.AddCommand(setSettingCmd)
}

func openStore(ctx context.Context) (*store.Postgres, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func listSettings(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := st.Settings(ctx)
	if err != nil {
		return err
	}
	redacted := s.Redacted()
	keys := make([]string, 0, len(redacted))
	for k := range redacted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", k, redacted[k])
	}
	provider, model := s.CurrentModel()
	fmt.Fprintf(cmd.OutOrStdout(), "\ncurrent model: %s/%s\n", provider, model)
	return nil
}

func setSetting(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetSetting(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
	return nil
}

func listSessions(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		history, err := st.History(ctx, args[0])
		if err != nil {
			return err
		}
		for _, qa := range history {
			cached := ""
			if qa.Cached {
				cached = " (cached)"
			}
			fmt.Fprintf(out, "[%s] %s/%s%s\nQ: %s\nA: %s\n\n",
				qa.CreatedAt.Local().Format(time.Kitchen), qa.Provider, qa.Model, cached, qa.Question, qa.Answer)
		}
		return nil
	}

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		ended := "running"
		if s.EndedAt != nil {
			ended = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(out, "%s  %-12s  %s  %-10s  %d submissions\n",
			s.ID, s.Mode, s.StartedAt.Local().Format(time.DateTime), ended, s.Submissions)
	}
	return nil
}
