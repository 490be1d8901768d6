package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"dealflow/internal/config"
	"dealflow/internal/models"
	"dealflow/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	rulesOut     string
	rulesTrigger string
)

// ruleDoc 规则的 YAML 外部形态，condition/action_config 展开成映射便于手编
type ruleDoc struct {
	Name         string                 `yaml:"name"`
	TriggerType  string                 `yaml:"trigger_type"`
	Condition    map[string]interface{} `yaml:"condition,omitempty"`
	ActionType   string                 `yaml:"action_type"`
	ActionConfig map[string]interface{} `yaml:"action_config,omitempty"`
	Enabled      *bool                  `yaml:"enabled"`
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Export/import automation rules as YAML",
	Long:  "Export automation rules to a YAML stream, or import rules from YAML files. Imports skip rules whose name already exists.",
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write automation rules as a YAML stream (stdout or --out)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		db, err := openRulesDB(cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		svc := services.NewAutomationService(db, logrus.StandardLogger())

		rules, err := svc.ListRules(context.Background(), nil, rulesTrigger, 1000)
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if rulesOut != "" {
			f, err := os.Create(rulesOut)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		for _, r := range rules {
			if err := enc.Encode(ruleToDoc(r)); err != nil {
				return fmt.Errorf("encode rule %q: %w", r.Name, err)
			}
		}
		if rulesOut != "" {
			fmt.Printf("Exported %d rules to %s\n", len(rules), rulesOut)
		}
		return nil
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <yaml-file>...",
	Short: "Create automation rules from YAML files, skipping duplicates by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		db, err := openRulesDB(cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		svc := services.NewAutomationService(db, logrus.StandardLogger())
		ctx := context.Background()

		var created, skipped int
		for _, path := range args {
			docs, err := readRuleDocs(path)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if strings.TrimSpace(doc.Name) == "" {
					return fmt.Errorf("%s: rule with empty name", path)
				}
				var n int64
				if err := db.Model(&models.AutomationRule{}).Where("name = ?", doc.Name).Count(&n).Error; err != nil {
					return fmt.Errorf("check existing rule: %w", err)
				}
				if n > 0 {
					fmt.Printf("Skipping %q (already exists)\n", doc.Name)
					skipped++
					continue
				}
				if _, err := svc.CreateRule(ctx, &services.AutomationRuleRequest{
					Name:         doc.Name,
					TriggerType:  doc.TriggerType,
					Condition:    doc.Condition,
					ActionType:   doc.ActionType,
					ActionConfig: doc.ActionConfig,
					Enabled:      doc.Enabled,
				}); err != nil {
					return fmt.Errorf("%s: import rule %q: %w", path, doc.Name, err)
				}
				created++
			}
		}
		fmt.Printf("Imported %d rules, skipped %d\n", created, skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesExportCmd)
	rulesCmd.AddCommand(rulesImportCmd)
	rulesExportCmd.Flags().StringVarP(&rulesOut, "out", "o", "", "output file (default stdout)")
	rulesExportCmd.Flags().StringVar(&rulesTrigger, "trigger", "", "only export rules with this trigger type")
}

func openRulesDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func ruleToDoc(r models.AutomationRule) ruleDoc {
	doc := ruleDoc{
		Name:        r.Name,
		TriggerType: r.TriggerType,
		ActionType:  r.ActionType,
		Enabled:     &r.Enabled,
	}
	if r.Condition != "" {
		_ = json.Unmarshal([]byte(r.Condition), &doc.Condition)
	}
	if r.ActionConfig != "" {
		_ = json.Unmarshal([]byte(r.ActionConfig), &doc.ActionConfig)
	}
	return doc
}

// readRuleDocs parses one file that may hold several YAML documents.
func readRuleDocs(path string) ([]ruleDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read YAML file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	var docs []ruleDoc
	for {
		var doc ruleDoc
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
