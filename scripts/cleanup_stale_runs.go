// 手动清理未完成的题目测试
//
// 服务启动时会自动清理一次，并定期清理心跳过期的记录。
// 此脚本用于服务停机期间或需要立即清理时手动执行。
//
// 用法: go run scripts/cleanup_stale_runs.go [-max-age 30m]

package main

import (
	"context"
	"flag"
	"log"
	"time"

	"exam_review_backend/internal/config"
	"exam_review_backend/internal/repository"
	"exam_review_backend/internal/service"
	"exam_review_backend/pkg/database"
	"exam_review_backend/pkg/logger"
	"exam_review_backend/pkg/retry"
)

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	maxAge := flag.Duration("max-age", 0, "清理创建时间早于该时长的 running 记录，默认使用 testing.stale_after")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	// 启用 Redis 时跳过其它实例正在执行的 run
	var guard service.RunGuard = service.NewMemoryRunGuard()
	if cfg.Redis.Enabled() {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("Redis连接失败: %v", err)
		}
		defer rdb.Close()
		guard = service.NewRedisRunGuard(rdb, cfg.Testing.LeaseTTL)
	}

	retrier, err := retry.New(retry.DefaultPolicy())
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	svc := service.NewTestingService(
		repository.NewQuestionRepository(db),
		repository.NewTestRunRepository(db),
		repository.NewTestAttemptRepository(db),
		nil,
		nil,
		retrier,
		guard,
		cfg.Testing,
	)

	age := *maxAge
	if age <= 0 {
		age = cfg.Testing.StaleAfter
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Printf("清理创建时间超过 %s 的未完成测试...", age)
	removed, err := svc.CleanupIncomplete(ctx, age)
	if err != nil {
		log.Fatalf("清理失败: %v", err)
	}
	log.Printf("完成！共删除 %d 条记录", removed)
}
