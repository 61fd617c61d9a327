package ai

import "testing"

func TestParseScoredResultPlainJSON(t *testing.T) {
	result, err := parseScoredResult(`{"is_recommended":true,"reason":"成色好，价格低于市场价"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !result.IsRecommended {
		t.Fatal("is_recommended = false")
	}
	if result.Reason == "" {
		t.Fatal("reason empty")
	}
}

func TestParseScoredResultFencedJSON(t *testing.T) {
	content := "```json\n{\"is_recommended\":false,\"reason\":\"疑似商家号\"}\n```"
	result, err := parseScoredResult(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.IsRecommended {
		t.Fatal("is_recommended = true")
	}
}

func TestParseScoredResultWithSurroundingProse(t *testing.T) {
	content := "好的，以下是分析结论：\n{\"is_recommended\":true,\"reason\":\"个人闲置\"}\n希望对你有帮助。"
	result, err := parseScoredResult(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !result.IsRecommended {
		t.Fatal("is_recommended = false")
	}
}

func TestParseScoredResultGarbage(t *testing.T) {
	if _, err := parseScoredResult("抱歉，我无法分析该商品。"); err == nil {
		t.Fatal("expected error for response without json")
	}
}
