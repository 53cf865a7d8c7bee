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
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"github.com/spf13/cobra"

	"github.com/eslsoft/dictsync/internal/adapter/source"
	"github.com/eslsoft/dictsync/internal/app"
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/infrastructure/database"
	"github.com/eslsoft/dictsync/internal/infrastructure/server"
)

// dbInitCmd creates the dictionary tables and optionally seeds them from a file
var dbInitCmd = &cobra.Command{
	Use:   "db-init",
	Short: "初始化字典表结构",
	Long:  "执行数据库迁移, 创建 dict_types 与 dict_values 表。可通过 --seed 从 YAML/JSON 文件导入初始字典。注意: go-sqlite3 需要 CGO_ENABLED=1 构建。",
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, _ := cmd.Flags().GetString("seed")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		logger, err := server.NewLogger(cfg)
		if err != nil {
			return err
		}
		drv, cleanup, err := database.NewEntDriver(cfg, logger)
		if err != nil {
			return fmt.Errorf("连接数据库失败: %w", err)
		}
		defer cleanup()

		if err := runMigrations(cmd.Context(), drv); err != nil {
			return err
		}
		if seed == "" {
			cmd.Println("迁移完成")
			return nil
		}
		n, err := seedTypes(cmd.Context(), drv, seed)
		if err != nil {
			return err
		}
		cmd.Printf("迁移完成, 已导入 %d 个字典类型: %s\n", n, seed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbInitCmd)
	dbInitCmd.Flags().String("seed", "", "初始字典文件 (YAML/JSON, 顶层为 types 列表)")
}

// runMigrations creates or upgrades the dictionary tables.
func runMigrations(ctx context.Context, drv dialect.Driver) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := database.Migrate(ctx, drv); err != nil {
		return fmt.Errorf("执行迁移失败: %w", err)
	}
	return nil
}

// seedTypes writes every type declared in path to the dictionary tables,
// replacing types with the same code.
func seedTypes(ctx context.Context, drv dialect.Driver, path string) (int, error) {
	src, err := source.LoadStaticFile("seed", path)
	if err != nil {
		return 0, fmt.Errorf("读取字典文件失败: %w", err)
	}
	var types []*entity.DictType
	for t, err := range src.Types(ctx) {
		if err != nil {
			return 0, err
		}
		types = append(types, t)
	}
	if err := source.NewTableSource(app.TableSourceName, drv).SaveTypes(ctx, types); err != nil {
		return 0, fmt.Errorf("写入字典失败: %w", err)
	}
	return len(types), nil
}
