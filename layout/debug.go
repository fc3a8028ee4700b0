package layout

import (
	"encoding/json"
	"fmt"
	"os"
)

// MarshalDebug 将布局结果编码为缩进 JSON。
func MarshalDebug(res *Result) ([]byte, error) {
	if res == nil {
		return nil, fmt.Errorf("布局结果为空")
	}
	return json.MarshalIndent(res, "", "  ")
}

// WriteDebugJSON 将布局结果输出为 JSON，便于调试或可视化。
func WriteDebugJSON(res *Result, path string) error {
	if res == nil {
		return nil
	}
	data, err := MarshalDebug(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入调试 JSON %s 失败: %w", path, err)
	}
	return nil
}
