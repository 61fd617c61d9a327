package parser

import (
	"fmt"
	"testing"
	"time"

	"fleahunter/internal/pkg/jsontree"
)

func mustParse(t *testing.T, s string) jsontree.Value {
	t.Helper()
	v, err := jsontree.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return v
}

func TestParseSearchResultsEmptyPayload(t *testing.T) {
	cases := []string{
		`{"data":{}}`,
		`{}`,
		`{"data":{"resultList":[]}}`,
		`{"data":{"resultList":null}}`,
	}
	for _, c := range cases {
		if got := ParseSearchResults(mustParse(t, c)); len(got) != 0 {
			t.Fatalf("payload %s: got %d items, want 0", c, len(got))
		}
	}
}

func searchFixture(priceParts string, tag string, tagList string) string {
	return fmt.Sprintf(`{"data":{"resultList":[{"data":{"item":{"main":{
		"exContent":{
			"title":"iPhone 13 国行",
			"price":%s,
			"oriPrice":"¥5999",
			"area":"浙江杭州",
			"userNickName":"鱼友小王",
			"picUrl":"https://img.example.com/1.jpg",
			"itemId":"912345678",
			"fishTags":{"r1":{"tagList":%s}}
		},
		"clickParam":{"args":{"publishTime":"1717236000000","wantNum":"23","tag":%q}},
		"targetUrl":"fleamarket://item?id=912345678&spm=a21ybx.search&track=abc"
	}}}}]}}`, priceParts, tagList, tag)
}

func TestParseSearchResultsFull(t *testing.T) {
	payload := mustParse(t, searchFixture(
		`[{"text":"¥"},{"text":"3200"}]`,
		"freeship",
		`[{"data":{"content":"验货宝已验"}}]`,
	))

	items := ParseSearchResults(payload)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]

	if it.Title != "iPhone 13 国行" {
		t.Fatalf("title = %q", it.Title)
	}
	if it.Price != "¥3200" {
		t.Fatalf("price = %q, want ¥3200", it.Price)
	}
	if it.Link != "https://www.goofish.com/item?id=912345678&spm=a21ybx.search&track=abc" {
		t.Fatalf("link not rewritten: %q", it.Link)
	}
	if len(it.Tags) != 2 || it.Tags[0] != "包邮" || it.Tags[1] != "验货宝" {
		t.Fatalf("tags = %v, want [包邮 验货宝]", it.Tags)
	}
	want := time.UnixMilli(1717236000000).Format("2006-01-02 15:04")
	if it.PublishTime != want {
		t.Fatalf("publish time = %q, want %q", it.PublishTime, want)
	}
	if it.WantCount != "23" {
		t.Fatalf("want count = %q", it.WantCount)
	}
}

func TestPriceWanExpansion(t *testing.T) {
	payload := mustParse(t, searchFixture(
		`[{"text":"当前价"},{"text":"¥"},{"text":"3.5万"}]`,
		"", `[]`,
	))
	items := ParseSearchResults(payload)
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].Price != "¥35000" {
		t.Fatalf("price = %q, want ¥35000", items[0].Price)
	}
}

func TestPublishTimeNonNumeric(t *testing.T) {
	payload := mustParse(t, `{"data":{"resultList":[{"data":{"item":{"main":{
		"exContent":{"title":"t","itemId":"1","price":[]},
		"clickParam":{"args":{"publishTime":"刚刚"}},
		"targetUrl":""
	}}}}]}}`)
	items := ParseSearchResults(payload)
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].PublishTime != "unknown" {
		t.Fatalf("publish time = %q, want unknown", items[0].PublishTime)
	}
}

func TestLinkUniqueKey(t *testing.T) {
	base := "https://www.goofish.com/item?id=912345678"
	if LinkUniqueKey(base+"&trackA=1") != LinkUniqueKey(base+"&trackB=2") {
		t.Fatal("tracking suffixes must not change the key")
	}
	if LinkUniqueKey(base) != base {
		t.Fatalf("key of bare link = %q", LinkUniqueKey(base))
	}
	if LinkUniqueKey(base+"&x=1") != base {
		t.Fatalf("key = %q, want %q", LinkUniqueKey(base+"&x=1"), base)
	}
}

func TestParseUserItemsStatusMapping(t *testing.T) {
	fixture := mustParse(t, `[
		{"cardData":{"id":"1","title":"a","itemStatus":0,"priceInfo":{"price":"100"},"picInfo":{"picUrl":"u1"}}},
		{"cardData":{"id":"2","title":"b","itemStatus":1}},
		{"cardData":{"id":"3","title":"c","itemStatus":7}}
	]`)
	items := ParseUserItems(fixture.Slice())
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Status != "on sale" {
		t.Fatalf("status[0] = %q", items[0].Status)
	}
	if items[1].Status != "sold" {
		t.Fatalf("status[1] = %q", items[1].Status)
	}
	if items[2].Status != "unknown status(7)" {
		t.Fatalf("status[2] = %q", items[2].Status)
	}
	if items[0].Price != "100" || items[0].MainImage != "u1" {
		t.Fatalf("item[0] = %+v", items[0])
	}
}

func TestComputeReputationZeroDenominator(t *testing.T) {
	stats := ComputeReputation(nil)
	if stats.SellerPositiveRate != "N/A" || stats.BuyerPositiveRate != "N/A" {
		t.Fatalf("empty ratings: %+v, want N/A rates", stats)
	}
}

func TestComputeReputation(t *testing.T) {
	fixture := mustParse(t, `[
		{"cardData":{"rateTagList":[{"text":"卖家评价"}],"rate":1}},
		{"cardData":{"rateTagList":[{"text":"卖家评价"}],"rate":-1}},
		{"cardData":{"rateTagList":[{"text":"买家评价"}],"rate":1}},
		{"cardData":{"rateTagList":[{"text":"路人"}],"rate":1}}
	]`)
	stats := ComputeReputation(fixture.Slice())
	if stats.SellerTotal != 2 || stats.SellerPositive != 1 {
		t.Fatalf("seller counts = %d/%d", stats.SellerPositive, stats.SellerTotal)
	}
	if stats.SellerPositiveRate != "50.00%" {
		t.Fatalf("seller rate = %q", stats.SellerPositiveRate)
	}
	if stats.BuyerTotal != 1 || stats.BuyerPositiveRate != "100.00%" {
		t.Fatalf("buyer = %d, %q", stats.BuyerTotal, stats.BuyerPositiveRate)
	}
}

func TestParseRatings(t *testing.T) {
	fixture := mustParse(t, `[
		{"cardData":{"rateTagList":[{"text":"卖家评价"}],"rate":1,"feedback":"好","raterUserNick":"u1"}},
		{"cardData":{"rateTagList":[{"text":"买家评价"}],"rate":0,"feedback":"一般","raterUserNick":"u2"}},
		{"cardData":{"rate":-1}}
	]`)
	ratings := ParseRatings(fixture.Slice())
	if len(ratings) != 3 {
		t.Fatalf("got %d ratings", len(ratings))
	}
	if ratings[0].Role != "seller" || ratings[0].Rate != "positive" {
		t.Fatalf("ratings[0] = %+v", ratings[0])
	}
	if ratings[1].Role != "buyer" || ratings[1].Rate != "neutral" {
		t.Fatalf("ratings[1] = %+v", ratings[1])
	}
	if ratings[2].Role != "unknown" || ratings[2].Rate != "negative" {
		t.Fatalf("ratings[2] = %+v", ratings[2])
	}
}

func TestParseUserHead(t *testing.T) {
	fixture := mustParse(t, `{"data":{"module":{
		"base":{
			"displayName":"老王二手",
			"avatar":{"avatar":"https://img/a.png"},
			"introduction":"只卖自用",
			"ylzTags":[
				{"text":"卖家信用极好","attributes":{"role":"seller","level":5}},
				{"text":"买家信用优秀","attributes":{"role":"buyer","level":4}},
				{"text":"芝麻信用 良好","attributes":{}}
			],
			"registerDays":800
		},
		"tabs":{"item":{"number":12},"rate":{"number":34}}
	}}}`)

	p := ParseUserHead(fixture)
	if p.Nickname != "老王二手" || p.Avatar != "https://img/a.png" {
		t.Fatalf("base = %+v", p)
	}
	if p.ItemCount != "12" || p.RatingCount != "34" {
		t.Fatalf("counts = %q/%q", p.ItemCount, p.RatingCount)
	}
	if p.SellerCredit != "卖家信用极好" || p.BuyerCredit != "买家信用优秀" {
		t.Fatalf("credit = %q/%q", p.SellerCredit, p.BuyerCredit)
	}
	if p.ZhimaCredit != "芝麻信用 良好" {
		t.Fatalf("zhima = %q", p.ZhimaCredit)
	}
	if p.RegistrationInfo == "" || p.RegistrationInfo == "unknown" {
		t.Fatalf("registration = %q", p.RegistrationInfo)
	}
}

func TestParseUserHeadEmpty(t *testing.T) {
	p := ParseUserHead(mustParse(t, `{}`))
	if p.Nickname != "unknown" {
		t.Fatalf("nickname = %q", p.Nickname)
	}
	if p.SellerCredit != "N/A" || p.BuyerCredit != "N/A" {
		t.Fatalf("credit defaults = %q/%q", p.SellerCredit, p.BuyerCredit)
	}
}

func TestFormatRegistrationDays(t *testing.T) {
	if got := FormatRegistrationDays(0); got != "unknown" {
		t.Fatalf("0 days = %q", got)
	}
	if got := FormatRegistrationDays(10); got != "来闲鱼不足一个月" {
		t.Fatalf("10 days = %q", got)
	}
	if got := FormatRegistrationDays(800); got != "来闲鱼2年2个月" {
		t.Fatalf("800 days = %q", got)
	}
}
