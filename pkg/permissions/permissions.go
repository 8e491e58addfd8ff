package permissions

import "errors"

// ErrAccessibility 未授予辅助功能权限
var ErrAccessibility = errors.New("未授予辅助功能权限，请在 系统设置 > 隐私与安全性 > 辅助功能 中允许本程序")
