package browser

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"fleahunter/internal/pkg/metrics"
)

// validationMarker 出现在 mtop 响应体里表示账号触发了滑块验证。
const validationMarker = "FAIL_SYS_USER_VALIDATE"

// 已知的遮挡元素选择器。前两个是风控弹窗，命中即任务级阻断；
// 其余是普通弹层，移除后可以继续。
var criticalOverlaySelectors = []string{
	"div.baxia-dialog-mask",
	"div.J_MIDDLEWARE_FRAME_WIDGET",
}

var blockingSelectors = []string{
	"div.baxia-dialog-mask",
	"div.J_MIDDLEWARE_FRAME_WIDGET",
	".ant-modal-root",
	".verify-modal",
	"[class*='verify']",
	"[class*='captcha']",
	"[class*='verification']",
	"[style*='position: fixed'][style*='z-index']",
	"iframe[src*='captcha']",
	"div[id*='popup']",
	"div[class*='overlay']",
	"div[role='dialog']",
	".modal-backdrop",
	".ant-modal-wrap",
}

const closeButtonSelector = `[class*="close"], [aria-label*="close"], [title*="close"]`

// dynamicBlockerJS 扫描未知的固定定位高层级遮罩。
const dynamicBlockerJS = `
() => {
    const elements = document.querySelectorAll('*');
    const blockers = [];
    elements.forEach(el => {
        const style = window.getComputedStyle(el);
        const rect = el.getBoundingClientRect();
        if (style.position === 'fixed' &&
            parseInt(style.zIndex) > 1000 &&
            rect.width > 200 && rect.height > 100 &&
            style.display !== 'none') {
            let selector = '';
            if (el.id) {
                selector = '#' + el.id;
            } else if (el.className && typeof el.className === 'string') {
                selector = '.' + el.className.trim().split(/\s+/).join('.');
            } else {
                selector = el.tagName.toLowerCase();
            }
            blockers.push({selector: selector, zIndex: style.zIndex});
        }
    });
    return blockers;
}
`

// RiskControlError 表示目标站点风控已经盯上当前账号或代理。
// 调用方应放弃本次尝试并把当前轮换项拉黑，而不是原地重试。
type RiskControlError struct {
	Trigger string
}

func (e *RiskControlError) Error() string {
	return fmt.Sprintf("risk control triggered: %s", e.Trigger)
}

// IsRiskControl 报告 err 链中是否包含风控错误。
func IsRiskControl(err error) bool {
	var rc *RiskControlError
	return errors.As(err, &rc)
}

// PayloadIndicatesValidation 报告 API 响应体是否带有滑块验证标记。
func PayloadIndicatesValidation(payload []byte) bool {
	return bytes.Contains(payload, []byte(validationMarker))
}

// RemoveBlockingElements 清理页面上的弹层遮罩，返回处理数量。
// 优先点击关闭按钮，找不到时直接摘除节点。
// aggressive 模式下对查询失败的选择器做 JS 强制删除兜底。
func RemoveBlockingElements(page *rod.Page, aggressive bool, logger *slog.Logger) int {
	removed := 0
	for _, sel := range blockingSelectors {
		els, err := page.Elements(sel)
		if err != nil {
			if aggressive {
				_, _ = page.Eval(fmt.Sprintf(`() => { try { document.querySelector(%q)?.remove(); } catch(e) {} }`, sel))
				removed++
			}
			continue
		}
		for _, el := range els {
			if dismissElement(el) {
				logger.Debug("removed blocking element", slog.String("selector", sel))
				removed++
			}
		}
	}

	// 动态兜底：扫描未登记的高层级遮罩
	if obj, err := page.Eval(dynamicBlockerJS); err == nil {
		for _, b := range obj.Value.Arr() {
			sel := b.Get("selector").Str()
			if sel == "" {
				continue
			}
			els, err := page.Elements(sel)
			if err != nil {
				continue
			}
			for _, el := range els {
				if dismissElement(el) {
					logger.Debug("removed dynamic blocker",
						slog.String("selector", sel),
						slog.String("z_index", b.Get("zIndex").Str()))
					removed++
				}
			}
		}
	}

	if removed > 0 {
		metrics.BlockingElementsRemoved.Add(float64(removed))
	}
	return removed
}

func dismissElement(el *rod.Element) bool {
	if closeBtns, err := el.Elements(closeButtonSelector); err == nil && len(closeBtns) > 0 {
		if err := closeBtns.First().Click("left", 1); err == nil {
			return true
		}
	}
	if _, err := el.Eval(`() => this.remove()`); err == nil {
		return true
	}
	return false
}

// CheckCriticalOverlays 在宽限期内轮询风控弹窗。
// 弹窗渲染有延迟，导航刚完成时单次检查会漏掉。
func CheckCriticalOverlays(page *rod.Page, grace time.Duration) error {
	deadline := time.Now().Add(grace)
	for {
		for _, sel := range criticalOverlaySelectors {
			els, err := page.Elements(sel)
			if err != nil {
				continue
			}
			for _, el := range els {
				visible, err := el.Visible()
				if err == nil && visible {
					metrics.RiskControlTotal.WithLabelValues(triggerLabel(sel)).Inc()
					return &RiskControlError{Trigger: sel}
				}
			}
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func triggerLabel(selector string) string {
	if strings.Contains(selector, "baxia") {
		return "baxia_dialog"
	}
	return "middleware_widget"
}
