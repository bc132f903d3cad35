// seedproblem loads problem definitions into the judge database. It is a
// development stand-in for the parent service's problem sync.
//
//	go run ./scripts/devtools/seedproblem -config configs/judged.yaml testdata/aplusb.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	"judgecore/internal/problem"

	"gopkg.in/yaml.v3"
)

type problemFile struct {
	problem.Problem
	Testcases []problem.Testcase `json:"testcases"`
}

type seedConfig struct {
	Database db.MySQLConfig    `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
}

func main() {
	configPath := flag.String("config", "configs/judged.yaml", "Path to judged config file")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: seedproblem [-config path] <problem.json> ...")
		os.Exit(1)
	}

	cfg, err := loadSeedConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	mysqlDB, err := db.NewMySQLWithConfig(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	store := problem.NewMySQLStore(mysqlDB, redisCache)
	ctx := context.Background()

	for _, path := range flag.Args() {
		pf, err := loadProblemFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load %s failed: %v\n", path, err)
			os.Exit(1)
		}
		if err := store.Upsert(ctx, &pf.Problem, pf.Testcases); err != nil {
			fmt.Fprintf(os.Stderr, "seed problem %d failed: %v\n", pf.ProblemID, err)
			os.Exit(1)
		}
		fmt.Printf("seeded problem %d (%s) with %d testcases\n", pf.ProblemID, pf.Title, len(pf.Testcases))
	}
}

func loadSeedConfig(path string) (*seedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg seedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	return &cfg, nil
}

func loadProblemFile(path string) (*problemFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem file failed: %w", err)
	}
	var pf problemFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse problem file failed: %w", err)
	}
	if pf.ProblemID <= 0 {
		return nil, fmt.Errorf("problem_id must be positive")
	}
	if len(pf.Testcases) == 0 {
		return nil, fmt.Errorf("problem has no testcases")
	}
	return &pf, nil
}
