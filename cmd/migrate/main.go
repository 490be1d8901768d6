package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"dealflow/internal/config"
	"dealflow/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 读取配置文件（与 cmd/server 相同的查找路径）
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	// 与 cmd/server 一致的 DSN 覆盖接口
	var (
		flagDSN   string
		dbHost    string
		dbPortStr string
		dbUser    string
		dbPass    string
		dbName    string
		dbSSLMode string
		dbTZ      string
	)
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)
	flagSet.StringVar(&flagDSN, "dsn", os.Getenv("DB_DSN"), "Postgres DSN, if set overrides other DB flags")
	flagSet.StringVar(&dbHost, "db-host", getenvDefault("DB_HOST", cfg.Database.Host), "database host")
	flagSet.StringVar(&dbPortStr, "db-port", getenvDefault("DB_PORT", fmt.Sprintf("%d", cfg.Database.Port)), "database port")
	flagSet.StringVar(&dbUser, "db-user", getenvDefault("DB_USER", cfg.Database.User), "database user")
	flagSet.StringVar(&dbPass, "db-pass", getenvDefault("DB_PASSWORD", cfg.Database.Password), "database password")
	flagSet.StringVar(&dbName, "db-name", getenvDefault("DB_NAME", cfg.Database.Name), "database name")
	flagSet.StringVar(&dbSSLMode, "db-sslmode", getenvDefault("DB_SSLMODE", "disable"), "sslmode (disable, require, verify-ca, verify-full)")
	flagSet.StringVar(&dbTZ, "db-timezone", getenvDefault("DB_TIMEZONE", "UTC"), "database timezone")
	_ = flagSet.Parse(os.Args[1:])

	dsn := flagDSN
	if dsn == "" {
		port := dbPortStr
		if port == "" && cfg.Database.Port != 0 {
			port = fmt.Sprintf("%d", cfg.Database.Port)
		}
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			firstNonEmpty(dbHost, cfg.Database.Host),
			firstNonEmpty(dbUser, cfg.Database.User),
			firstNonEmpty(dbPass, cfg.Database.Password),
			firstNonEmpty(dbName, cfg.Database.Name),
			port, dbSSLMode, dbTZ)
	}

	// 连接数据库
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.Contact{},
		&models.Tag{},
		&models.ContactNote{},
		&models.Deal{},
		&models.Activity{},
		&models.CompanyIntel{},
		&models.Notification{},
		&models.AutomationRule{},
		&models.AutomationRun{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建索引
	log.Println("Creating additional indexes...")

	// 活动按联系人和日期查（今日任务、即将到期）
	db.Exec("CREATE INDEX IF NOT EXISTS idx_activities_contact_date ON activities(contact_id, date)")

	// 商机按阶段过滤并按更新时间排序（管道统计、赢单丢单报表）
	db.Exec("CREATE INDEX IF NOT EXISTS idx_deals_stage_updated ON deals(stage, updated_at)")

	// 通知未读数查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications(user_id, read)")

	// 规则评估按触发器取启用项
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_rules_trigger_enabled ON automation_rules(trigger_type, enabled)")

	log.Println("Additional indexes created successfully!")

	log.Println("Migration process completed!")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
