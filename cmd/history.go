package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the most recent activity records",
	Run: func(cmd *cobra.Command, _ []string) {
		history(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", store.DefaultLimit, "number of records to show")
}

func history(cmd *cobra.Command) {
	ctx := context.Background()

	logger := mustLogger(true)
	config := mustConfig(logger)

	if config.Database.URL == "" {
		logger.Fatal("history needs a database",
			zap.String("hint", "set database.url or DATABASE_URL"),
		)
	}

	st, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the activity log", zap.Error(err))
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := st.Recent(ctx, limit)
	if err != nil {
		logger.Fatal("listing activity records", zap.Error(err))
	}

	logger.Info("listing activity records", zap.Int("count", len(records)))

	pretty, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(pretty))
}
