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
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eslsoft/dictsync/internal/adapter/broadcast"
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/infrastructure/database"
	"github.com/eslsoft/dictsync/internal/infrastructure/server"
)

var errBroadcastDisabled = errors.New("broadcast.backend 为 none, 无法发送通知")

// notifyCmd asks running instances to re-run their sources
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "广播刷新通知, 让运行中的实例重新加载字典",
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		sources, _ := cmd.Flags().GetStringSlice("sources")
		ownReplicas, _ := cmd.Flags().GetBool("own-replicas")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		logger, err := server.NewLogger(cfg)
		if err != nil {
			return err
		}

		n := &entity.Notice{
			Message:             message,
			OriginatingInstance: cfg.InstanceID(),
			NotifyOwnReplicas:   ownReplicas,
			SourceNameFilter:    normalizeNames(sources),
		}
		if err := publishNotice(cmd.Context(), cfg, logger, n); err != nil {
			return err
		}
		cmd.Printf("已发送通知: instance=%s sources=%v\n", n.OriginatingInstance, n.SourceNameFilter)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)

	notifyCmd.Flags().String("message", "manual refresh", "通知说明")
	notifyCmd.Flags().StringSlice("sources", nil, "仅刷新指定来源，逗号分隔或重复指定")
	notifyCmd.Flags().Bool("own-replicas", true, "与本实例同名的副本也执行刷新")
}

// publishNotice sends n over the configured broadcast backend.
func publishNotice(ctx context.Context, cfg *config.Config, logger *logrus.Logger, n *entity.Notice) error {
	rdb, closeRedis, err := database.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("连接 redis 失败: %w", err)
	}
	defer closeRedis()

	b, closeBroadcaster, err := broadcast.NewBroadcaster(cfg, rdb, logger)
	if err != nil {
		return fmt.Errorf("创建广播失败: %w", err)
	}
	defer closeBroadcaster()
	if b == nil {
		return errBroadcastDisabled
	}

	if err := b.Publish(ctx, n); err != nil {
		return fmt.Errorf("发送通知失败: %w", err)
	}
	return nil
}
