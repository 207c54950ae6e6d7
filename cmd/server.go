package cmd

import (
	"soundbridge/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动SoundBridge服务器",
	Long:  `启动SoundBridge音乐社区的HTTP服务器，提供上传、动态流和审核API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
