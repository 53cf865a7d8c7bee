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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/dictsync/internal/adapter/source"
	"github.com/eslsoft/dictsync/internal/app"
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/infrastructure/database"
	"github.com/eslsoft/dictsync/internal/infrastructure/server"
	"github.com/eslsoft/dictsync/internal/usecase/backup"
)

const (
	importInputKey  = "backup.import.input"
	importGzipKey   = "backup.import.gzip"
	importTypesKey  = "backup.import.types"
	importBatchKey  = "backup.import.batch_size"
	importNotifyKey = "backup.import.notify"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "从备份文件导入字典表",
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

		inputPath := viper.GetString(importInputKey)
		gzipEnabled := viper.GetBool(importGzipKey)
		typeList := typesFromConfig(importTypesKey)
		batchSize := viper.GetInt(importBatchKey)
		notify := viper.GetBool(importNotifyKey)

		if inputPath == "" {
			return fmt.Errorf("请通过 --input 指定备份文件或使用 - 表示标准输入")
		}
		if !gzipEnabled && inputPath != "-" && strings.HasSuffix(strings.ToLower(inputPath), ".gz") {
			gzipEnabled = true
		}

		drv, cleanup, err := database.NewEntDriver(cfg, logger)
		if err != nil {
			return fmt.Errorf("连接数据库失败: %w", err)
		}
		defer cleanup()
		if err := runMigrations(ctx, drv); err != nil {
			return err
		}

		var (
			reader  = cmd.InOrStdin()
			closers []func() error
		)

		if inputPath != "-" {
			file, openErr := os.Open(filepath.Clean(inputPath))
			if openErr != nil {
				return fmt.Errorf("打开备份文件失败: %w", openErr)
			}
			reader = file
			closers = append(closers, file.Close)
		}

		if gzipEnabled {
			gzr, gzErr := gzip.NewReader(reader)
			if gzErr != nil {
				for _, closer := range closers {
					_ = closer()
				}
				return fmt.Errorf("创建 gzip 读取器失败: %w", gzErr)
			}
			reader = gzr
			closers = append([]func() error{gzr.Close}, closers...)
		}

		defer func() {
			for _, closer := range closers {
				if cerr := closer(); cerr != nil && err == nil {
					err = cerr
				}
			}
		}()

		var importOpts []backup.ImportOption
		if len(typeList) > 0 {
			importOpts = append(importOpts, backup.WithImportTypes(typeList))
		}

		service := backup.NewService(backup.WithBatchSize(batchSize))
		n, err := service.Import(ctx, reader, source.NewTableSource(app.TableSourceName, drv), importOpts...)
		if err != nil {
			return fmt.Errorf("导入备份失败 (已写入 %d 个类型): %w", n, err)
		}

		if inputPath == "-" {
			cmd.Printf("导入完成: %d 个类型, 数据来源于标准输入\n", n)
		} else {
			cmd.Printf("导入完成: %d 个类型, %s\n", n, inputPath)
		}

		if !notify {
			return nil
		}
		// the CLI usually shares app.name with the servers, so their replicas must act on it
		return publishNotice(ctx, cfg, logger, &entity.Notice{
			Message:             "backup imported",
			OriginatingInstance: cfg.InstanceID(),
			NotifyOwnReplicas:   true,
			SourceNameFilter:    []string{app.TableSourceName},
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("input", "i", "", "备份文件路径，使用 - 表示标准输入")
	importCmd.Flags().Bool("gzip", false, "输入为 gzip 压缩格式")
	importCmd.Flags().StringSlice("types", nil, "仅导入指定字典类型，逗号分隔或重复指定")
	importCmd.Flags().Int("batch-size", 0, "导入批处理大小 (默认 512)")
	importCmd.Flags().Bool("notify", false, "导入后通知所有实例重新加载 table 来源")

	bindImportConfig()
}

func bindImportConfig() {
	bindFlagToViper(importInputKey, importCmd.Flags().Lookup("input"))
	bindFlagToViper(importGzipKey, importCmd.Flags().Lookup("gzip"))
	bindFlagToViper(importTypesKey, importCmd.Flags().Lookup("types"))
	bindFlagToViper(importBatchKey, importCmd.Flags().Lookup("batch-size"))
	bindFlagToViper(importNotifyKey, importCmd.Flags().Lookup("notify"))
}
