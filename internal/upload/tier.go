package upload

import "docchat/internal/config"

// Plan is the upload initialization response: the chosen part size in bytes
// and the resulting part count. Both are deterministic for a given file size.
type Plan struct {
	PartSize  int64 `json:"part_size"`
	PartCount int   `json:"part_count"`
}

// PartPlan chooses a part size by tiering on the declared file size and
// derives the part count as ceil(size / partSize). Larger files get larger
// parts so the part count stays bounded; the tier boundaries are policy, but
// part size must never shrink as file size grows.
func PartPlan(cfg config.UploadConfig, size int64) Plan {
	var partSize int64
	switch {
	case size <= cfg.SmallFileLimit:
		partSize = cfg.SmallPartSize
	case size <= cfg.MediumFileLimit:
		partSize = cfg.MediumPartSize
	default:
		partSize = cfg.LargePartSize
	}

	count := size / partSize
	if size%partSize != 0 {
		count++
	}
	return Plan{PartSize: partSize, PartCount: int(count)}
}
