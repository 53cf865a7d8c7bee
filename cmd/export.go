/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/dictsync/internal/adapter/source"
	"github.com/eslsoft/dictsync/internal/adapter/store"
	"github.com/eslsoft/dictsync/internal/app"
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/infrastructure/database"
	"github.com/eslsoft/dictsync/internal/infrastructure/server"
	"github.com/eslsoft/dictsync/internal/repository"
	"github.com/eslsoft/dictsync/internal/usecase/backup"
)

const (
	exportOutputKey = "backup.export.output"
	exportGzipKey   = "backup.export.gzip"
	exportTypesKey  = "backup.export.types"
	exportFromKey   = "backup.export.from"
)

const (
	exportFromTable = "table"
	exportFromStore = "store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "导出字典为 NDJSON 备份",
	Long:  "从字典表 (--from table) 或共享存储 (--from store, 需要 redis.addr) 导出字典类型。",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		logger, err := server.NewLogger(cfg)
		if err != nil {
			return err
		}

		outputPath := viper.GetString(exportOutputKey)
		gzipEnabled := viper.GetBool(exportGzipKey)
		typeList := typesFromConfig(exportTypesKey)
		from := strings.ToLower(strings.TrimSpace(viper.GetString(exportFromKey)))

		if outputPath == "" {
			outputPath = defaultExportFilename(gzipEnabled)
		}
		if !gzipEnabled && outputPath != "-" && strings.HasSuffix(strings.ToLower(outputPath), ".gz") {
			gzipEnabled = true
		}

		types, cleanup, err := openExportSource(ctx, cfg, logger, from)
		if err != nil {
			return err
		}
		defer cleanup()

		var (
			writer   = cmd.OutOrStdout()
			closeFns []func() error
		)

		if outputPath != "-" {
			if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
				return fmt.Errorf("创建输出目录失败: %w", err)
			}
			file, openErr := os.Create(outputPath)
			if openErr != nil {
				return fmt.Errorf("创建备份文件失败: %w", openErr)
			}
			writer = file
			closeFns = append(closeFns, file.Close)
		}

		if gzipEnabled {
			gz := gzip.NewWriter(writer)
			writer = gz
			closeFns = append([]func() error{gz.Close}, closeFns...)
		}

		defer func() {
			for _, closer := range closeFns {
				if cerr := closer(); cerr != nil && err == nil {
					err = cerr
				}
			}
		}()

		progress := newCLIProgress(cmd.ErrOrStderr())
		exportOpts := []backup.ExportOption{backup.WithProgressReporter(progress)}
		if len(typeList) > 0 {
			exportOpts = append(exportOpts, backup.WithTypes(typeList))
		}

		if err := backup.NewService().Export(ctx, writer, from, types, exportOpts...); err != nil {
			return fmt.Errorf("导出备份失败: %w", err)
		}

		if outputPath == "-" {
			cmd.PrintErrln("导出完成: 输出到标准输出")
		} else {
			cmd.Printf("导出完成: %s\n", outputPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "备份输出文件路径，使用 - 表示标准输出")
	exportCmd.Flags().Bool("gzip", false, "使用 gzip 压缩输出")
	exportCmd.Flags().StringSlice("types", nil, "仅导出指定字典类型，逗号分隔或重复指定")
	exportCmd.Flags().String("from", exportFromTable, "导出来源: table 或 store")

	bindExportConfig()
}

func openExportSource(ctx context.Context, cfg *config.Config, logger *logrus.Logger, from string) (iter.Seq2[*entity.DictType, error], func(), error) {
	switch from {
	case "", exportFromTable:
		drv, cleanup, err := database.NewEntDriver(cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		return source.NewTableSource(app.TableSourceName, drv).Types(ctx), cleanup, nil
	case exportFromStore:
		rdb, cleanup, err := database.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("连接 redis 失败: %w", err)
		}
		if rdb == nil {
			return nil, nil, fmt.Errorf("--from store 需要配置 redis.addr")
		}
		st, err := store.NewStore(cfg, rdb, repository.NoFallback{}, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return storeTypes(ctx, st), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("未知的导出来源 %q", from)
	}
}

func defaultExportFilename(gzipEnabled bool) string {
	ts := time.Now().UTC().Format("20060102-150405")
	filename := fmt.Sprintf("dictsync-backup-%s.jsonl", ts)
	if gzipEnabled {
		filename += ".gz"
	}
	return filename
}

func bindExportConfig() {
	bindFlagToViper(exportOutputKey, exportCmd.Flags().Lookup("output"))
	bindFlagToViper(exportGzipKey, exportCmd.Flags().Lookup("gzip"))
	bindFlagToViper(exportTypesKey, exportCmd.Flags().Lookup("types"))
	bindFlagToViper(exportFromKey, exportCmd.Flags().Lookup("from"))
}

// cliProgress prints export progress. The type count is unknown up front,
// so it reports every step types.
type cliProgress struct {
	out         io.Writer
	source      string
	count       int
	lastPrinted int
	step        int
}

func newCLIProgress(out io.Writer) *cliProgress {
	return &cliProgress{out: out, step: 100}
}

func (p *cliProgress) Start(source string) {
	p.source = source
	p.count = 0
	p.lastPrinted = 0
	fmt.Fprintf(p.out, "开始导出 %s\n", source)
}

func (p *cliProgress) Increment(delta int) {
	if delta <= 0 {
		return
	}
	p.count += delta
	if p.count-p.lastPrinted >= p.step {
		fmt.Fprintf(p.out, "导出进度 %s: 已处理 %d 个类型\n", p.source, p.count)
		p.lastPrinted = p.count
	}
}

func (p *cliProgress) Finish(total int) {
	fmt.Fprintf(p.out, "完成导出 %s: %d 个类型\n", p.source, total)
}
