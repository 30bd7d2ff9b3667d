package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/akarpov/mailsheet/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Setup mailsheet configuration",
		Long:  "Interactive wizard to configure the target spreadsheet and Google credentials. Can be re-run anytime to update settings.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	cfg := &config.Config{}
	if data, err := os.ReadFile(configPath); err == nil {
		yaml.Unmarshal(data, cfg)
		fmt.Println(infoStyle.Render("Existing config found. Current values shown as defaults.\n"))
	}

	fmt.Println(titleStyle.Render("📊 Target spreadsheet"))

	spreadsheetID := cfg.Sheet.SpreadsheetID
	sheetName := cfg.Sheet.Name
	if sheetName == "" {
		sheetName = "Email Log"
	}

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Spreadsheet ID").
				Description("The long id in the sheet URL: docs.google.com/spreadsheets/d/<id>/edit").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("spreadsheet id is required")
					}
					return nil
				}).
				Value(&spreadsheetID),
			huh.NewInput().
				Title("Sheet tab name").
				Value(&sheetName),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("\n🔑 Google credentials"))

	credentialsFile := cfg.Google.CredentialsFile
	err = huh.NewInput().
		Title("OAuth credentials file").
		Description("Downloaded from the Google Cloud console (Desktop app client).").
		Placeholder("~/.config/mailsheet/credentials.json").
		Value(&credentialsFile).
		Run()
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("\n⚙️  Processing"))

	batchLimit := "10"
	if cfg.Ingest.BatchLimit > 0 {
		batchLimit = strconv.Itoa(cfg.Ingest.BatchLimit)
	}
	err = huh.NewSelect[string]().
		Title("Messages per run").
		Options(
			huh.NewOption("10 (default)", "10"),
			huh.NewOption("20", "20"),
			huh.NewOption("50", "50"),
		).
		Value(&batchLimit).
		Run()
	if err != nil {
		return err
	}

	cfg.Sheet.SpreadsheetID = strings.TrimSpace(spreadsheetID)
	cfg.Sheet.Name = sheetName
	cfg.Google.CredentialsFile = expandHome(credentialsFile)
	cfg.Ingest.BatchLimit, _ = strconv.Atoi(batchLimit)

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println(successStyle.Render("\n✓ Config saved to " + configPath))
	fmt.Println(infoStyle.Render("Run `mailsheet run` to process your first batch. The first run opens a browser window for Google authorization."))
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return home + path[1:]
	}
	return path
}
