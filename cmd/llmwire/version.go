package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumik/llmwire/version"
)

func newVersionCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			switch outputFormat {
			case "json":
				s, err := info.ToJSON()
				if err != nil {
					return err
				}
				fmt.Println(s)
			case "short":
				fmt.Println(info.String())
			default:
				fmt.Println(info.Text())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "输出格式 (text, json, short)")
	return cmd
}
