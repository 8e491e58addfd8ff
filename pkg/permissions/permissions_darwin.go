//go:build darwin

// Package permissions 桌面点击所需的系统权限检查（macOS 需要辅助功能权限）
package permissions

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework ApplicationServices
#import <Cocoa/Cocoa.h>
#import <ApplicationServices/ApplicationServices.h>

int checkAccessibilityPermission() {
    NSDictionary *options = @{(__bridge NSString *)kAXTrustedCheckOptionPrompt: @NO};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

// Accessibility 检查辅助功能权限（不触发弹窗）
func Accessibility() error {
	if C.checkAccessibilityPermission() == 1 {
		return nil
	}
	return ErrAccessibility
}
