//go:build !darwin

package permissions

// Accessibility 非 macOS 系统不需要辅助功能权限
func Accessibility() error {
	return nil
}
