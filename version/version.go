// Package version 记录 llmwire 二进制的构建信息。
// 通过 -ldflags 在构建时注入：
//
//	go build -ldflags "-X github.com/lumik/llmwire/version.version=v0.3.0 \
//	  -X github.com/lumik/llmwire/version.gitCommit=$(git rev-parse HEAD) \
//	  -X github.com/lumik/llmwire/version.buildDate=$(date -u +'%Y-%m-%dT%H:%M:%SZ')"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/gosuri/uitable"
)

var (
	// version 语义化版本号 vMAJOR.MINOR.PATCH[-PRERELEASE]
	version = "v0.0.0-dev"
	// gitCommit 构建时的 git SHA1
	gitCommit = "unknown"
	// gitTreeState 构建时仓库状态，clean 或 dirty
	gitTreeState = ""
	// buildDate ISO8601 格式的构建时间
	buildDate = "1970-01-01T00:00:00Z"
)

// Info 包含版本与构建环境信息
type Info struct {
	Version      string `json:"version"`
	GitCommit    string `json:"gitCommit"`
	GitTreeState string `json:"gitTreeState,omitempty"`
	BuildDate    string `json:"buildDate"`
	GoVersion    string `json:"goVersion"`
	Compiler     string `json:"compiler"`
	Platform     string `json:"platform"`
}

// String 返回人性化的版本字符串
func (info Info) String() string {
	if info.GitTreeState == "dirty" {
		return info.Version + "-dirty"
	}
	return info.Version
}

// ToJSON 以 JSON 格式返回版本信息
func (info Info) ToJSON() (string, error) {
	s, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal version info: %w", err)
	}
	return string(s), nil
}

// Text 将版本信息渲染为对齐的文本表格
func (info Info) Text() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("version:", info.Version)
	table.AddRow("gitCommit:", info.GitCommit)
	if info.GitTreeState != "" {
		table.AddRow("gitTreeState:", info.GitTreeState)
	}
	table.AddRow("buildDate:", info.BuildDate)
	table.AddRow("goVersion:", info.GoVersion)
	table.AddRow("compiler:", info.Compiler)
	table.AddRow("platform:", info.Platform)
	return table.String()
}

// Get 返回当前二进制的版本信息
func Get() Info {
	return Info{
		Version:      version,
		GitCommit:    gitCommit,
		GitTreeState: gitTreeState,
		BuildDate:    buildDate,
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
