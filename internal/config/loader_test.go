package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/axelofwar/be-community-gamification/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.SampleSize, convey.ShouldEqual, 5)
				convey.So(cfg.Collections, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PFPBOARD_ADDR", ":8080")
			_ = os.Setenv("PFPBOARD_QUEUE_SIZE", "500")
			_ = os.Setenv("PFPBOARD_WORKER_COUNT", "16")
			_ = os.Setenv("PFPBOARD_SAMPLE_SIZE", "3")
			_ = os.Setenv("PFPBOARD_RESOLVE_STRATEGY", "best_score")
			_ = os.Setenv("PFPBOARD_EXACT_THRESHOLD", "0.95")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.SampleSize, convey.ShouldEqual, 3)
				convey.So(cfg.ResolveStrategy, convey.ShouldEqual, config.StrategyBestScore)
				convey.So(cfg.ExactThreshold, convey.ShouldEqual, 0.95)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
worker_count: 4
ssim_window: gaussian
db_driver: sqlite
db_dsn: "file::memory:?cache=shared"
collections:
  - name: y00ts
    dir: /data/y00ts
    threshold: 0.55
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PFPBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.SSIMWindow, convey.ShouldEqual, config.WindowGaussian)
				convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.Collections, convey.ShouldHaveLength, 1)
				convey.So(cfg.Collections[0].Dir, convey.ShouldEqual, "/data/y00ts")
				convey.So(cfg.Collections[0].Threshold, convey.ShouldEqual, 0.55)
			})
		})

		convey.Convey("When a YAML collection leaves out its threshold", func() {
			tmpFile := createTempConfigFile("collections:\n  - name: punks\n    dir: refs/punks\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PFPBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then no default threshold is inherited and validation fails", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "threshold")
			})
		})

		convey.Convey("When YAML lists more collections than the defaults", func() {
			yamlContent := `
collections:
  - name: punks
    dir: refs/punks
    threshold: 0.6
  - name: apes
    dir: refs/apes
    threshold: 0.4
  - name: cats
    dir: refs/cats
    threshold: 0.7
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PFPBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then exactly the configured collections are used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Collections, convey.ShouldResemble, []config.Collection{
					{Name: "punks", Dir: "refs/punks", Threshold: 0.6},
					{Name: "apes", Dir: "refs/apes", Threshold: 0.4},
					{Name: "cats", Dir: "refs/cats", Threshold: 0.7},
				})
			})
		})

		convey.Convey("When loading config with both file and env vars", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nworker_count: 4\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PFPBOARD_CONFIG", tmpFile)
			_ = os.Setenv("PFPBOARD_WORKER_COUNT", "12")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars should take precedence over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 12)
			})
		})

		convey.Convey("When loading config with invalid YAML", func() {
			tmpFile := createTempConfigFile("addr: [unclosed\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PFPBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("PFPBOARD_CONFIG", "/nonexistent/pfpboard.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When env sets an invalid strategy", func() {
			_ = os.Setenv("PFPBOARD_RESOLVE_STRATEGY", "coin_flip")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation should fail", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	envVars := []string{
		"PFPBOARD_CONFIG",
		"PFPBOARD_ADDR",
		"PFPBOARD_QUEUE_SIZE",
		"PFPBOARD_WORKER_COUNT",
		"PFPBOARD_SAMPLE_SIZE",
		"PFPBOARD_RESOLVE_STRATEGY",
		"PFPBOARD_EXACT_THRESHOLD",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "pfpboard-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
