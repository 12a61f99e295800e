package scan

import "fmt"

// Fingerprint 计算文件元数据的稳定版本键
// 优先内容摘要，其次提供方的版本令牌，最后退化为 (size, modified_time)
// 退化方案存在漏报可能：大小不变的内容编辑不会被察觉
func Fingerprint(meta FileMetadata) string {
	if meta.ContentHash != "" {
		return "hash:" + meta.ContentHash
	}

	if meta.Revision != "" {
		return "rev:" + meta.Revision
	}

	return fmt.Sprintf("meta:%d:%d", meta.Size, meta.ModifiedAt.UTC().Unix())
}
