package schema

// TextPart 创建文本内容片段
func TextPart(text string) ContentPart {
	return TextContent{Text: text}
}

// ImagePart 创建内联图片内容片段
func ImagePart(mimeType string, data []byte) ContentPart {
	return ImageContent{MIMEType: mimeType, Data: data}
}

// ImageURLPart 创建图片 URL 内容片段
func ImageURLPart(url, mimeType string) ContentPart {
	return ImageURLContent{URL: url, MIMEType: mimeType}
}

// FileURLPart 创建文件 URL 内容片段
func FileURLPart(url, mimeType string) ContentPart {
	return FileURLContent{URL: url, MIMEType: mimeType}
}

// SystemMessage 创建系统消息
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(content)}}
}

// UserMessage 创建用户消息
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(content)}}
}

// AssistantMessage 创建助手消息
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart(content)}}
}

// ToolResultMessage 创建工具结果消息
func ToolResultMessage(toolCallID, name, content string) Message {
	return Message{
		Role: RoleTool,
		ToolResults: []ToolResult{{
			Name:       name,
			ToolCallID: toolCallID,
			Content:    []ContentPart{TextPart(content)},
		}},
	}
}
