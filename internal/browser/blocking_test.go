package browser

import (
	"errors"
	"fmt"
	"testing"
)

func TestPayloadIndicatesValidation(t *testing.T) {
	blocked := []byte(`{"ret":["FAIL_SYS_USER_VALIDATE::哎哟喂,被挤爆啦"]}`)
	if !PayloadIndicatesValidation(blocked) {
		t.Fatal("validation marker not detected")
	}
	ok := []byte(`{"ret":["SUCCESS::调用成功"],"data":{}}`)
	if PayloadIndicatesValidation(ok) {
		t.Fatal("false positive on normal payload")
	}
}

func TestIsRiskControl(t *testing.T) {
	err := fmt.Errorf("fetch detail: %w", &RiskControlError{Trigger: "div.baxia-dialog-mask"})
	if !IsRiskControl(err) {
		t.Fatal("wrapped risk control error not recognized")
	}
	if IsRiskControl(errors.New("navigate timeout")) {
		t.Fatal("plain error misclassified as risk control")
	}
}

func TestTriggerLabel(t *testing.T) {
	if got := triggerLabel("div.baxia-dialog-mask"); got != "baxia_dialog" {
		t.Fatalf("label = %q", got)
	}
	if got := triggerLabel("div.J_MIDDLEWARE_FRAME_WIDGET"); got != "middleware_widget" {
		t.Fatalf("label = %q", got)
	}
}
