// Package locale holds the user-facing texts of the agent in each
// supported language.
package locale

import (
	"fmt"
	"strings"
)

// Supported languages.
const (
	Japanese = "ja"
	English  = "en"

	Default = Japanese
)

// Strings is one language's set of user-facing texts.
type Strings struct {
	Language string

	Welcome       string
	EmptyMessage  string
	NotConfigured string
	NoResponse    string
	Apology       string

	// Format strings.
	errorResult    string
	processingTime string
	providerInfo   string
}

var japanese = Strings{
	Language: Japanese,
	Welcome: `👋 こんにちは！営業支援エージェントです

**できること:**
- 📧 Outlook メールから商談関連情報を収集
- 📅 カレンダーから商談予定を確認
- 📁 SharePoint から提案書・見積書を検索
- 📢 Teams チャネルから商談関連の会話を抽出

**使い方:**
「今週の商談サマリを教えて」と話しかけてください。

**例:**
- 今週の商談サマリを教えて
- 先週の重要な商談を教えて
- 〇〇社に関する情報をまとめて

---
⚠️ 初回利用時は、管理者が Microsoft 365 と Bot の設定を完了している必要があります。`,
	EmptyMessage:   "メッセージを入力してください。",
	NotConfigured:  "⚠️ Microsoft 365 が設定されていません。appsettings.json の M365 セクションを設定してください。",
	NoResponse:     "応答がありませんでした。",
	Apology:        "申し訳ありません。応答の生成中に問題が発生しました。もう一度お試しください。",
	errorResult:    "❌ エラーが発生しました: %s\n\n設定を確認してください。",
	processingTime: "⚡ 処理時間: %dms",
	providerInfo:   "🤖 %s",
}

var english = Strings{
	Language: English,
	Welcome: `👋 Hello! I'm your Sales Support Agent

**What I can do:**
- 📧 Collect sales-related information from Outlook emails
- 📅 Check sales meetings from Calendar
- 📁 Search for proposals and quotes from SharePoint
- 📢 Extract sales-related conversations from Teams channels

**How to use:**
Just say "Show me this week's sales summary"

**Examples:**
- Show me this week's sales summary
- Tell me about last week's important deals
- Summarize information about Company X

---
⚠️ Note: Microsoft 365 and Bot must be configured by administrator before first use.`,
	EmptyMessage:   "Please enter a message.",
	NotConfigured:  "⚠️ Microsoft 365 is not configured. Please configure the M365 section in appsettings.json.",
	NoResponse:     "No response was returned.",
	Apology:        "Sorry, something went wrong while generating the response. Please try again.",
	errorResult:    "❌ An error occurred: %s\n\nPlease check the configuration.",
	processingTime: "⚡ Processing time: %dms",
	providerInfo:   "🤖 %s",
}

// Supported reports whether lang names a language with its own texts.
func Supported(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case Japanese, English:
		return true
	}
	return false
}

// For returns the texts of lang. Unknown languages get Japanese.
func For(lang string) Strings {
	if strings.EqualFold(strings.TrimSpace(lang), English) {
		return english
	}
	return japanese
}

// ErrorResult is the reply text of a failed summary.
func (s Strings) ErrorResult(msg string) string {
	return fmt.Sprintf(s.errorResult, msg)
}

// Footer is the processing-time and provider line appended to bot replies.
func (s Strings) Footer(processingMs int64, provider string) string {
	return fmt.Sprintf(s.processingTime, processingMs) + " | " + fmt.Sprintf(s.providerInfo, provider)
}
