// llmwire 是一个最小的多 provider 聊天 CLI，同时用作库的集成示例。
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
