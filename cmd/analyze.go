package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/ingestion"
	"github.com/spigell/nexhire/internal/screening"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis of a résumé against a job description",
	Long: `Run one analysis and print the result as JSON.

Résumés may be PDF, DOCX or plain text files. The job description is read
from a file, given inline with --job-text or fetched with --job-url.`,
	Run: func(cmd *cobra.Command, _ []string) {
		analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("action", "a", "", "analysis to run (asked interactively when empty)")
	analyzeCmd.Flags().StringP("resume", "r", "", "résumé file")
	analyzeCmd.Flags().String("resume-v2", "", "second résumé version for compare-versions")
	analyzeCmd.Flags().String("job", "", "job description file")
	analyzeCmd.Flags().String("job-text", "", "job description text")
	analyzeCmd.Flags().String("job-url", "", "job posting page to read the description from")
	analyzeCmd.Flags().String("skill", "", "skill to simulate for simulate-skill")
	analyzeCmd.Flags().Int("score", 0, "current ATS score for simulate-skill and explain-score")
	analyzeCmd.Flags().Bool("bias-free", false, "redact personal details before screening")
	analyzeCmd.Flags().String("user-id", "", "user id recorded in the activity log (random when empty)")

	analyzeCmd.MarkFlagRequired("resume")
}

func analyze(cmd *cobra.Command) {
	ctx := context.Background()
	flags := cmd.Flags()

	logger := mustLogger(true)
	config := mustConfig(logger)

	action, _ := flags.GetString("action")
	if action == "" {
		selected, err := selectAction()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		action = string(selected)
	}

	in, err := analysisInput(ctx, cmd)
	if err != nil {
		logger.Fatal("reading inputs", zap.Error(err))
	}

	st, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the activity log", zap.Error(err))
	}
	defer st.Close()

	svc, done, err := newService(ctx, config, st, logger)
	if err != nil {
		logger.Fatal("building the analysis service", zap.Error(err))
	}
	defer done()

	out, err := svc.Run(ctx, screening.Action(action), in)
	if out == nil {
		logger.Fatal("running the analysis", zap.String("action", action), zap.Error(err))
	}
	if err != nil {
		logger.Warn("analysis degraded", zap.String("reason", out.Reason), zap.Error(err))
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Fatal("encoding the result", zap.Error(err))
	}
	fmt.Println(string(pretty))
}

func analysisInput(ctx context.Context, cmd *cobra.Command) (screening.Input, error) {
	flags := cmd.Flags()
	var in screening.Input

	resumePath, _ := flags.GetString("resume")
	resume, err := readDocument(resumePath)
	if err != nil {
		return in, err
	}
	in.Resume = resume

	if path, _ := flags.GetString("resume-v2"); path != "" {
		if in.ResumeV2, err = readDocument(path); err != nil {
			return in, err
		}
	}

	in.Job, _ = flags.GetString("job-text")
	if path, _ := flags.GetString("job"); path != "" {
		if in.Job, err = readDocument(path); err != nil {
			return in, err
		}
	}
	if url, _ := flags.GetString("job-url"); url != "" && strings.TrimSpace(in.Job) == "" {
		if in.Job, err = ingestion.NewFetcher().FetchJob(ctx, url); err != nil {
			return in, fmt.Errorf("fetch job posting: %w", err)
		}
	}
	if strings.TrimSpace(in.Job) == "" {
		return in, errors.New("a job description is required, use --job, --job-text or --job-url")
	}

	in.Skill, _ = flags.GetString("skill")
	in.Score, _ = flags.GetInt("score")
	in.BiasFree, _ = flags.GetBool("bias-free")

	in.UserID, _ = flags.GetString("user-id")
	if in.UserID == "" {
		in.UserID = uuid.NewString()
	}

	return in, nil
}

func readDocument(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	text, err := ingestion.Read(filepath.Base(path), "", f)
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", path, err)
	}
	return text, nil
}

func selectAction() (screening.Action, error) {
	actions := screening.Actions()

	items := make([]string, 0, len(actions))
	for _, a := range actions {
		items = append(items, fmt.Sprintf("%-17s %s", a.Action, a.Title))
	}

	prompt := promptui.Select{
		Label: "Choose an analysis",
		Items: items,
		Size:  len(items),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return actions[idx].Action, nil
}
