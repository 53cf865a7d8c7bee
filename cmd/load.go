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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eslsoft/dictsync/internal/app"
)

// loadCmd runs one registrar pass into the configured store and exits
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "执行一次字典加载并写入存储",
	Long:  "按配置的来源执行一次完整加载。配合 redis 存储使用时可作为定时任务预热共享存储。",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, _ := cmd.Flags().GetStringSlice("sources")

		c, cleanup, err := app.Initialize()
		if err != nil {
			return fmt.Errorf("初始化失败: %w", err)
		}
		defer cleanup()

		report := c.Registrar.Refresh(cmd.Context(), normalizeNames(sources))
		if len(report.Sources) == 0 {
			return fmt.Errorf("没有匹配的来源: %v (可用: %v)", sources, c.Registrar.Sources())
		}
		cmd.Printf("加载完成: %v, 用时 %s\n", report.Sources, report.Duration)
		if report.OK() {
			return nil
		}
		errs := make([]error, 0, len(report.Failed))
		for name, err := range report.Failed {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringSlice("sources", nil, "仅加载指定来源，逗号分隔或重复指定")
}
