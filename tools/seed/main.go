package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn           string
	userPrefix    string
	itemPrefix    string
	alarmPrefix   string
	userCount     int
	itemCount     int
	alarmCount    int
	grantsPerUser int
	clearFirst    bool
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.userCount <= 0 || cfg.itemCount <= 0 {
		log.Fatal("user-count and item-count must be > 0")
	}
	if cfg.grantsPerUser > cfg.itemCount {
		cfg.grantsPerUser = cfg.itemCount
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if cfg.clearFirst {
		log.Printf("clearing seeded rows: users=%s* items=%s*", cfg.userPrefix, cfg.itemPrefix)
		if err := clearSeeded(ctx, db, cfg); err != nil {
			log.Fatalf("clear seeded rows: %v", err)
		}
	}

	log.Printf("seeding item_permissions: users=%d items=%d grants-per-user=%d", cfg.userCount, cfg.itemCount, cfg.grantsPerUser)
	if err := seedPermissions(ctx, db, cfg); err != nil {
		log.Fatalf("seed permissions: %v", err)
	}

	log.Printf("seeding active_alarms: alarms=%d items=%d", cfg.alarmCount, cfg.itemCount)
	if err := seedAlarms(ctx, db, cfg); err != nil {
		log.Fatalf("seed alarms: %v", err)
	}

	log.Printf("seed completed")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.userPrefix, "user-prefix", envOrDefault("USER_PREFIX", "user-load-"), "user id prefix")
	flag.StringVar(&cfg.itemPrefix, "item-prefix", envOrDefault("ITEM_PREFIX", "item-load-"), "item id prefix")
	flag.StringVar(&cfg.alarmPrefix, "alarm-prefix", envOrDefault("ALARM_PREFIX", "alarm-load-"), "alarm id prefix")
	flag.IntVar(&cfg.userCount, "user-count", envOrInt("USER_COUNT", 100), "number of users to grant permissions to")
	flag.IntVar(&cfg.itemCount, "item-count", envOrInt("ITEM_COUNT", 50), "number of distinct items")
	flag.IntVar(&cfg.alarmCount, "alarm-count", envOrInt("ALARM_COUNT", 200), "number of active alarms to seed")
	flag.IntVar(&cfg.grantsPerUser, "grants-per-user", envOrInt("GRANTS_PER_USER", 10), "items each user may view")
	flag.BoolVar(&cfg.clearFirst, "clear", envOrBool("CLEAR_FIRST", false), "delete previously seeded rows first")
	flag.Parse()
	return cfg
}

func clearSeeded(ctx context.Context, db *sql.DB, cfg config) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM item_permissions WHERE user_id LIKE $1`, cfg.userPrefix+"%"); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM active_alarms WHERE id LIKE $1`, cfg.alarmPrefix+"%"); err != nil {
		return err
	}
	return nil
}

func seedPermissions(ctx context.Context, db *sql.DB, cfg config) error {
	const insertSQL = `
INSERT INTO item_permissions (user_id, item_id, granted_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, item_id) DO NOTHING`

	now := time.Now().UTC()
	for u := 0; u < cfg.userCount; u++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		userID := fmt.Sprintf("%s%04d", cfg.userPrefix, u+1)
		for g := 0; g < cfg.grantsPerUser; g++ {
			itemID := itemID(cfg.itemPrefix, (u+g)%cfg.itemCount)
			if _, err := stmt.ExecContext(ctx, userID, itemID, now); err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				return err
			}
		}

		if err := stmt.Close(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		if (u+1)%50 == 0 || u+1 == cfg.userCount {
			log.Printf("seeded permissions user %s (%d/%d)", userID, u+1, cfg.userCount)
		}
	}
	return nil
}

func seedAlarms(ctx context.Context, db *sql.DB, cfg config) error {
	const insertSQL = `
INSERT INTO active_alarms (id, item_id, priority, status, raised_at)
VALUES ($1, $2, $3, 'active', $4)
ON CONFLICT (id) DO UPDATE SET
	item_id = EXCLUDED.item_id,
	priority = EXCLUDED.priority,
	status = EXCLUDED.status,
	raised_at = EXCLUDED.raised_at`

	now := time.Now().UTC()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for a := 0; a < cfg.alarmCount; a++ {
		alarmID := fmt.Sprintf("%s%05d", cfg.alarmPrefix, a+1)
		raisedAt := now.Add(-time.Duration(a) * time.Minute)
		if _, err := stmt.ExecContext(ctx, alarmID, itemID(cfg.itemPrefix, a%cfg.itemCount), a%4+1, raisedAt); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return err
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func itemID(prefix string, index int) string {
	return fmt.Sprintf("%s%04d", prefix, index+1)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envOrBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
