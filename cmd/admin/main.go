package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"phPortfolio/internal/auth"
	"phPortfolio/internal/config"
	"phPortfolio/internal/database"
	"phPortfolio/internal/slug"
)

func main() {
	var (
		username       = flag.String("username", "", "初始管理员用户名（与 --deactivate-slug 二选一）")
		deactivateSlug = flag.String("deactivate-slug", "", "停用指定 slug 的活跃作品集并释放该 slug")
		dbHost         = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort         = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName         = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser         = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass         = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode        = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	u := strings.TrimSpace(*username)
	target := strings.TrimSpace(*deactivateSlug)
	if u == "" && target == "" {
		log.Fatal("missing required flag: --username or --deactivate-slug")
	}
	if u != "" && target != "" {
		log.Fatal("--username and --deactivate-slug are mutually exclusive")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if target != "" {
		deactivatePortfolio(db, target)
		return
	}

	createAdminUser(db, u)
}

func createAdminUser(db *gorm.DB, username string) {
	if err := db.AutoMigrate(&database.User{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	var existing database.User
	switch err := db.Where("username = ?", username).First(&existing).Error; {
	case err == nil:
		log.Fatalf("user %q already exists", username)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query user: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user := database.User{
		Username:     username,
		PasswordHash: hashed,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("已创建初始管理员账号：\n")
	fmt.Printf("用户名: %s\n", username)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
}

// deactivatePortfolio 停用占用指定 slug 的活跃记录。
// 外部已部署的站点不受影响，slug 立即可被他人使用。
func deactivatePortfolio(db *gorm.DB, rawSlug string) {
	normalized := slug.Normalize(rawSlug)
	if normalized == "" {
		log.Fatalf("slug %q normalizes to empty", rawSlug)
	}

	result := db.Model(&database.Portfolio{}).
		Where("LOWER(slug) = LOWER(?) AND is_active = ?", normalized, true).
		Update("is_active", false)
	if result.Error != nil {
		log.Fatalf("deactivate portfolio: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Fatalf("no active portfolio with slug %q", normalized)
	}

	fmt.Printf("已停用 slug %q 的活跃作品集（外部站点不受影响）。\n", normalized)
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("DB_NAME")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("DB_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("DB_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
